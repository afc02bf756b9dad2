// Package security seals metadata blobs at rest with AES-GCM under a
// 32-byte master key owned by a Keychain instance.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const keySize = 32

// keyEnvVar overrides the on-disk key file when set to 64 hex characters.
const keyEnvVar = "FLIGHTLOG_MASTER_KEY"

// Keychain holds the master key and the AEAD built from it. A Keychain is
// immutable after construction and safe for concurrent use.
type Keychain struct {
	aead cipher.AEAD
}

// OpenKeychain resolves the master key and returns a ready Keychain. Key
// resolution order: the environment variable, then the key file at keyPath,
// then a freshly generated key persisted to keyPath. The second return is
// true when a new key was generated.
func OpenKeychain(keyPath string) (*Keychain, bool, error) {
	if key := decodeKey(os.Getenv(keyEnvVar)); key != nil {
		kc, err := newKeychain(key)
		return kc, false, err
	}

	if data, err := os.ReadFile(keyPath); err == nil {
		key := decodeKey(string(data))
		if key == nil {
			return nil, false, fmt.Errorf("key file %s is not a %d-byte hex key", keyPath, keySize)
		}
		kc, err := newKeychain(key)
		return kc, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("read key file: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("persist master key to %s: %w", keyPath, err)
	}
	kc, err := newKeychain(key)
	return kc, true, err
}

func newKeychain(key []byte) (*Keychain, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Keychain{aead: aead}, nil
}

// decodeKey parses a hex master key, returning nil unless it is exactly
// keySize bytes.
func decodeKey(s string) []byte {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil || len(key) != keySize {
		return nil
	}
	return key
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (k *Keychain) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Unseal decrypts a blob produced by Seal.
func (k *Keychain) Unseal(blob []byte) ([]byte, error) {
	ns := k.aead.NonceSize()
	if len(blob) < ns {
		return nil, errors.New("sealed blob shorter than nonce")
	}
	return k.aead.Open(nil, blob[:ns], blob[ns:], nil)
}
