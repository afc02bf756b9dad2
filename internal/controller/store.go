// Package controller manages service metadata: API tokens and runtime
// configuration, persisted encrypted on disk.
package controller

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/skyfleet/flightlog/internal/pkg/security"
)

// APIToken represents a machine-to-machine access key. Only the bcrypt
// hash is stored; the token value is shown once at creation time.
type APIToken struct {
	ID        string `json:"id"`
	Name      string `json:"name"`   // e.g. "Ground Station"
	Hash      string `json:"hash"`   // bcrypt of the token value
	Prefix    string `json:"prefix"` // first characters, display hint only
	CreatedAt int64  `json:"created_at"`
}

// Config holds system-wide settings.
type Config struct {
	RemoteEndpoint string `json:"remote_endpoint"` // ParseResult POST target
}

// MetaData is the top-level container for service metadata.
type MetaData struct {
	Tokens []APIToken `json:"tokens"`
	Config Config     `json:"config"`
}

// Store handles the persistence and in-memory management of MetaData.
type Store struct {
	filePath string
	keychain *security.Keychain
	mu       sync.RWMutex
	data     *MetaData
}

// NewStore creates a metadata store backed by filePath, sealed under kc.
func NewStore(filePath string, kc *security.Keychain) *Store {
	return &Store{
		filePath: filePath,
		keychain: kc,
		data: &MetaData{
			Tokens: make([]APIToken, 0),
		},
	}
}

// Load reads metadata from disk. A missing file is not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}

	encrypted, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(encrypted) == 0 {
		return nil
	}

	plain, err := s.keychain.Unseal(encrypted)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, s.data)
}

// Save writes metadata to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	jsonData, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	sealed, err := s.keychain.Seal(jsonData)
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, sealed, 0600)
}

// GetConfig returns the current configuration.
func (s *Store) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Config
}

// UpdateConfig replaces the configuration and persists it.
func (s *Store) UpdateConfig(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Config = cfg
	return s.saveLocked()
}

// ListTokens returns copies of all tokens (hashes included; callers strip
// them before serving).
func (s *Store) ListTokens() []APIToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]APIToken(nil), s.data.Tokens...)
}

// HasTokens reports whether any token exists yet.
func (s *Store) HasTokens() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Tokens) > 0
}

// CreateToken mints a new token, stores its hash and returns the one-time
// plaintext value.
func (s *Store) CreateToken(name string) (APIToken, string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return APIToken{}, "", err
	}
	value := "fl-" + hex.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
	if err != nil {
		return APIToken{}, "", err
	}

	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return APIToken{}, "", err
	}

	tok := APIToken{
		ID:        hex.EncodeToString(idBytes),
		Name:      name,
		Hash:      string(hash),
		Prefix:    value[:8],
		CreatedAt: time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tokens = append(s.data.Tokens, tok)
	if err := s.saveLocked(); err != nil {
		return APIToken{}, "", err
	}
	return tok, value, nil
}

// VerifyToken reports whether value matches any stored token hash.
func (s *Store) VerifyToken(value string) bool {
	s.mu.RLock()
	tokens := append([]APIToken(nil), s.data.Tokens...)
	s.mu.RUnlock()

	for _, tok := range tokens {
		if bcrypt.CompareHashAndPassword([]byte(tok.Hash), []byte(value)) == nil {
			return true
		}
	}
	return false
}

// DeleteToken removes a token by id.
func (s *Store) DeleteToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, tok := range s.data.Tokens {
		if tok.ID == id {
			s.data.Tokens = append(s.data.Tokens[:i], s.data.Tokens[i+1:]...)
			return s.saveLocked()
		}
	}
	return os.ErrNotExist
}
