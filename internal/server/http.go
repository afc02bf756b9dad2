// Package server exposes the HTTP surface: log upload, interactive type
// selection, sessions, stats, token management, metrics and the websocket
// update stream.
package server

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/controller"
	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/session"
	"github.com/skyfleet/flightlog/internal/worker"
)

// maxUploadBytes caps a single log upload (after decompression).
const maxUploadBytes = 256 << 20

// APIServer routes HTTP requests to the parse worker and serves the
// service's operational endpoints.
type APIServer struct {
	inbox    chan<- worker.Message
	stats    *worker.Stats
	hub      *Hub
	sessions *session.Store
	meta     *controller.Store
	metrics  *metric.Metrics
	promReg  *prometheus.Registry
	log      *zap.Logger
	srv      *http.Server
	parser   fastjson.ParserPool
	upgrader websocket.Upgrader
}

// NewAPIServer wires the HTTP surface to its collaborators.
func NewAPIServer(
	inbox chan<- worker.Message,
	stats *worker.Stats,
	hub *Hub,
	sessions *session.Store,
	meta *controller.Store,
	m *metric.Metrics,
	promReg *prometheus.Registry,
	log *zap.Logger,
) *APIServer {
	return &APIServer{
		inbox:    inbox,
		stats:    stats,
		hub:      hub,
		sessions: sessions,
		meta:     meta,
		metrics:  m,
		promReg:  promReg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The UI is served from arbitrary origins during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the HTTP server; it blocks until Shutdown.
func (s *APIServer) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)

	mux.Handle("/api/logs", s.AuthMiddleware(http.HandlerFunc(s.handleUpload)))
	mux.Handle("/api/logs/loadtype", s.AuthMiddleware(http.HandlerFunc(s.handleLoadType)))
	mux.Handle("/api/sessions", s.AuthMiddleware(http.HandlerFunc(s.handleSessions)))
	mux.Handle("/api/stats", s.AuthMiddleware(http.HandlerFunc(s.handleStats)))

	mux.Handle("/api/tokens", s.AuthMiddleware(http.HandlerFunc(s.handleTokens)))
	mux.Handle("/api/tokens/", s.AuthMiddleware(http.HandlerFunc(s.handleTokenItem)))

	mux.Handle("/api/stream", s.AuthMiddleware(http.HandlerFunc(s.handleStream)))

	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// AuthMiddleware checks for a valid bearer token. While no token exists yet
// (fresh install), requests pass so the first token can be created.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.meta.HasTokens() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" || !s.meta.VerifyToken(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="FlightLog"`)
			http.Error(w, "Unauthorized: invalid or missing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// handleUpload accepts a raw (optionally gzip-compressed) log file body and
// submits it to the worker. Discriminators come from query parameters, with
// a filename-extension fallback.
func (s *APIServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var body io.Reader = r.Body
	name := r.URL.Query().Get("name")

	if r.Header.Get("Content-Encoding") == "gzip" || strings.HasSuffix(name, ".gz") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "Invalid gzip body", http.StatusBadRequest)
			return
		}
		defer zr.Close()
		body = zr
		name = strings.TrimSuffix(name, ".gz")
	}

	buf, err := io.ReadAll(io.LimitReader(body, maxUploadBytes+1))
	if err != nil {
		s.log.Warn("upload read failed", zap.Error(err))
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	if len(buf) == 0 {
		http.Error(w, "Empty log file", http.StatusBadRequest)
		return
	}
	if len(buf) > maxUploadBytes {
		http.Error(w, "Log file too large", http.StatusRequestEntityTooLarge)
		return
	}

	isTlog := r.URL.Query().Get("tlog") == "1" || path.Ext(name) == ".tlog"
	isDji := !isTlog && (r.URL.Query().Get("dji") == "1" || path.Ext(name) == ".dat")

	format := "dataflash"
	switch {
	case isTlog:
		format = "tlog"
	case isDji:
		format = "dji"
	}

	sess := s.sessions.Create(name, format, int64(len(buf)))
	msg := worker.Message{
		Action:    worker.ActionParse,
		File:      buf,
		IsTlog:    isTlog,
		IsDji:     isDji,
		SessionID: sess.ID,
	}

	select {
	case s.inbox <- msg:
	default:
		// Worker busy and queue full; the client retries.
		s.sessions.Delete(sess.ID)
		http.Error(w, "Parser busy, retry later", http.StatusServiceUnavailable)
		return
	}

	s.metrics.UploadBytes.Add(float64(len(buf)))
	s.log.Info("log accepted",
		zap.String("session", sess.ID),
		zap.String("format", format),
		zap.Int("bytes", len(buf)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"session_id": sess.ID, "format": format}); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

// handleLoadType forwards a type-selection request to the bound parser.
func (s *APIServer) handleLoadType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	typ := string(v.GetStringBytes("type"))
	if typ == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	if id := string(v.GetStringBytes("session_id")); id != "" {
		s.sessions.Touch(id)
	}

	select {
	case s.inbox <- worker.Message{Action: worker.ActionLoadType, Type: typ}:
	default:
		http.Error(w, "Parser busy, retry later", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *APIServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.sessions.List())
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.stats.Snapshot())
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tokens := s.meta.ListTokens()
		for i := range tokens {
			tokens[i].Hash = ""
		}
		s.writeJSON(w, tokens)

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		tok, value, err := s.meta.CreateToken(req.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, map[string]string{"id": tok.ID, "token": value})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) handleTokenItem(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	id := parts[len(parts)-1]

	if r.Method == http.MethodDelete {
		if err := s.meta.DeleteToken(id); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleStream upgrades to a websocket and relays the UI channel.
func (s *APIServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	go s.hub.serve(conn)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}
