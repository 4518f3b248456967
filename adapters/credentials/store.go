// Package credentials holds the server-side Gemini API key and the ways a
// host can replace it at runtime.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

const defaultKeyName = "GEMINI_API_KEY"

var (
	// ErrNoSelector is returned by hosts that cannot pick a new key interactively.
	ErrNoSelector = errors.New("credential re-selection is not available")
	// ErrKeyUnchanged means the source still holds the key that was rejected.
	ErrKeyUnchanged = errors.New("api key unchanged")
	// ErrKeyMissing means the source has no key at all.
	ErrKeyMissing = errors.New("api key missing")
)

// KeyStore is the current API key. Every Set bumps the version.
type KeyStore struct {
	mu      sync.RWMutex
	key     string
	version uint64
}

var _ repositories.CredentialSource = (*KeyStore)(nil)

func NewKeyStore(key string) *KeyStore {
	s := &KeyStore{}
	if key != "" {
		s.Set(key)
	}
	return s
}

func (s *KeyStore) APIKey() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.version
}

// Set replaces the key and reports whether it changed.
func (s *KeyStore) Set(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == s.key {
		return false
	}
	s.key = key
	s.version++
	return true
}

// DotenvSelector re-reads an env file and swaps the key in the store. An
// operator edits the file, the next failing call picks it up.
type DotenvSelector struct {
	path    string
	keyName string
	store   *KeyStore
	logger  *zap.Logger
}

var _ repositories.CredentialSelector = (*DotenvSelector)(nil)

func NewDotenvSelector(path string, store *KeyStore, logger *zap.Logger) (*DotenvSelector, error) {
	if path == "" {
		return nil, fmt.Errorf("env file path is required")
	}
	if store == nil {
		return nil, fmt.Errorf("key store is required")
	}
	return &DotenvSelector{path: path, keyName: defaultKeyName, store: store, logger: logger}, nil
}

func (d *DotenvSelector) Select(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := godotenv.Read(d.path)
	if err != nil {
		return fmt.Errorf("failed to read env file: %w", err)
	}
	key := env[d.keyName]
	if key == "" {
		return fmt.Errorf("%w: %s not set in %s", ErrKeyMissing, d.keyName, d.path)
	}
	if !d.store.Set(key) {
		return ErrKeyUnchanged
	}
	_, version := d.store.APIKey()
	d.logger.Info("API key reloaded", zap.String("path", d.path), zap.Uint64("version", version))
	return nil
}

// StaticSelector is used when the key comes from the process environment only.
type StaticSelector struct{}

var _ repositories.CredentialSelector = StaticSelector{}

func (StaticSelector) Select(ctx context.Context) error {
	return ErrNoSelector
}
