package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/controller"
	"github.com/skyfleet/flightlog/internal/metric"
	"github.com/skyfleet/flightlog/internal/pkg/security"
	"github.com/skyfleet/flightlog/internal/session"
	"github.com/skyfleet/flightlog/internal/worker"
)

func newTestServer(t *testing.T, inbox chan worker.Message) *APIServer {
	t.Helper()

	keychain, _, err := security.OpenKeychain(filepath.Join(t.TempDir(), "key"))
	if err != nil {
		t.Fatalf("keychain: %v", err)
	}

	m := metric.NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("metrics register: %v", err)
	}

	meta := controller.NewStore(filepath.Join(t.TempDir(), "meta.enc"), keychain)
	log := zap.NewNop()
	return NewAPIServer(inbox, worker.NewStats(), NewHub(log), session.NewStore(), meta, m, reg, log)
}

func TestHandleUpload(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	body := []byte{0xA3, 0x95, 0x01, 0x02}
	req := httptest.NewRequest("POST", "/api/logs?name=flight.bin", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleUpload(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var msg worker.Message
	select {
	case msg = <-inbox:
		if msg.Action != worker.ActionParse {
			t.Errorf("expected parse action, got %q", msg.Action)
		}
		if msg.IsTlog || msg.IsDji {
			t.Error("plain .bin upload should be dataflash")
		}
		if !bytes.Equal(msg.File, body) {
			t.Error("buffer was not forwarded intact")
		}
	default:
		t.Fatal("no message submitted to worker")
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response json: %v", err)
	}
	if resp["session_id"] == "" || resp["format"] != "dataflash" {
		t.Errorf("unexpected response: %v", resp)
	}
	if msg.SessionID != resp["session_id"] {
		t.Errorf("worker message session %q != response session %q", msg.SessionID, resp["session_id"])
	}
	if len(s.sessions.List()) != 1 {
		t.Error("session should be registered")
	}
}

func TestHandleUploadDiscriminators(t *testing.T) {
	cases := []struct {
		url    string
		isTlog bool
		isDji  bool
	}{
		{"/api/logs?name=flight.tlog", true, false},
		{"/api/logs?tlog=1", true, false},
		{"/api/logs?name=FLY001.dat", false, true},
		{"/api/logs?dji=1", false, true},
		{"/api/logs?name=flight.bin", false, false},
	}

	for _, tc := range cases {
		inbox := make(chan worker.Message, 1)
		s := newTestServer(t, inbox)

		req := httptest.NewRequest("POST", tc.url, strings.NewReader("xx"))
		w := httptest.NewRecorder()
		s.handleUpload(w, req)

		msg := <-inbox
		if msg.IsTlog != tc.isTlog || msg.IsDji != tc.isDji {
			t.Errorf("%s: got tlog=%v dji=%v", tc.url, msg.IsTlog, msg.IsDji)
		}
	}
}

func TestHandleUploadGzip(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	raw := []byte{0xA3, 0x95, 0x2A, 0x00}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	req := httptest.NewRequest("POST", "/api/logs?name=flight.bin.gz", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.handleUpload(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	msg := <-inbox
	if !bytes.Equal(msg.File, raw) {
		t.Error("gzip body was not decompressed")
	}
}

func TestHandleUploadBusy(t *testing.T) {
	inbox := make(chan worker.Message) // unbuffered and nobody reading
	s := newTestServer(t, inbox)

	req := httptest.NewRequest("POST", "/api/logs", strings.NewReader("xx"))
	w := httptest.NewRecorder()
	s.handleUpload(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if len(s.sessions.List()) != 0 {
		t.Error("no session should be created for a rejected upload")
	}
}

func TestHandleUploadEmpty(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	req := httptest.NewRequest("POST", "/api/logs", strings.NewReader(""))
	w := httptest.NewRecorder()
	s.handleUpload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleLoadType(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	req := httptest.NewRequest("POST", "/api/logs/loadtype", strings.NewReader(`{"type":"ATT[0]"}`))
	w := httptest.NewRecorder()
	s.handleLoadType(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	msg := <-inbox
	if msg.Action != worker.ActionLoadType || msg.Type != "ATT[0]" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestHandleLoadTypeBadJSON(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	req := httptest.NewRequest("POST", "/api/logs/loadtype", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	s.handleLoadType(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	inbox := make(chan worker.Message, 1)
	s := newTestServer(t, inbox)

	protected := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Fresh install: no tokens yet, requests pass.
	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("fresh install should pass, got %d", w.Code)
	}

	_, value, err := s.meta.CreateToken("test")
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	// Missing token now rejected.
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	// Bearer token accepted.
	req = httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+value)
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token rejected: %d", w.Code)
	}

	// Wrong token rejected.
	req = httptest.NewRequest("GET", "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer fl-bogus")
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, make(chan worker.Message, 1))
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
