// Package session tracks parse sessions. A session is created per parse
// call and threaded through subsequent loadType requests; there is no
// module-level "current parser" state anywhere in the service.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session states.
const (
	StateParsing = "parsing"
	StateReady   = "ready"
	StateFailed  = "failed"
)

// Session describes one parse call and its interactive afterlife.
type Session struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Format       string `json:"format"` // "dataflash", "tlog", "dji"
	State        string `json:"state"`
	SizeBytes    int64  `json:"size_bytes"`
	StartedAt    int64  `json:"started_at"`
	LastActiveAt int64  `json:"last_active_at"`
}

// Store handles the in-memory set of sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session in the parsing state and returns a copy.
func (s *Store) Create(filename, format string, size int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	sess := &Session{
		ID:           uuid.NewString(),
		Filename:     filename,
		Format:       format,
		State:        StateParsing,
		SizeBytes:    size,
		StartedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[sess.ID] = sess
	return *sess
}

// SetState updates a session's state and refreshes its activity time.
func (s *Store) SetState(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.State = state
		sess.LastActiveAt = time.Now().Unix()
	}
}

// Touch refreshes a session's activity time.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.LastActiveAt = time.Now().Unix()
	}
}

// Delete removes a session by id. Used when an upload is rejected after
// its session was already registered.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Get retrieves a session copy by id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// List returns copies of all sessions.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, *sess)
	}
	return list
}

// PruneStale removes sessions inactive for longer than timeout and returns
// how many were dropped.
func (s *Store) PruneStale(timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	timeoutSec := int64(timeout.Seconds())
	count := 0
	for id, sess := range s.sessions {
		if now-sess.LastActiveAt > timeoutSec {
			delete(s.sessions, id)
			count++
		}
	}
	return count
}

// StartCleanupLoop prunes stale sessions in the background until ctx ends.
func (s *Store) StartCleanupLoop(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.PruneStale(timeout)
			case <-ctx.Done():
				return
			}
		}
	}()
}
