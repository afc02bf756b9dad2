package server

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/model"
)

// Hub relays the worker's UI channel to every connected websocket client.
// The worker never blocks on a slow client: messages to a subscriber with a
// full queue are dropped for that subscriber only.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
	log  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subs: make(map[chan []byte]struct{}),
		log:  log,
	}
}

// Run consumes updates until ctx ends, broadcasting each to all
// subscribers. Each update is marshalled once.
func (h *Hub) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			payload, err := json.Marshal(u)
			if err != nil {
				h.log.Warn("dropping unencodable update", zap.Error(err))
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
			// Slow subscriber; skip this update for it.
		}
	}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// serve pumps hub messages to one websocket connection until it drops.
func (h *Hub) serve(conn *websocket.Conn) {
	ch := h.subscribe()
	defer func() {
		h.unsubscribe(ch)
		conn.Close()
	}()

	// Reader goroutine: detect client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case payload := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
