package localstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Well-known keys. Each is serialized independently.
const (
	KeyRoute    = "route_data"
	KeyPending  = "pending_actions"
	KeyLastSync = "last_sync"
)

// DefaultNamespace prefixes every key written by a Store.
const DefaultNamespace = "promoter_"

// ErrNotFound is returned by backends when a key has no value.
var ErrNotFound = errors.New("key not found")

// Backend is a durable byte-level key-value store.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// Store persists JSON values under namespaced keys. Writes are best effort:
// failures are logged and swallowed so callers can continue optimistically.
// Reads that fail for any reason report the value as absent.
type Store struct {
	backend   Backend
	namespace string
	logger    *zap.SugaredLogger
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace overrides the key prefix.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.namespace = ns
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps backend in a Store.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s
}

func (s *Store) key(key string) string {
	return s.namespace + key
}

// Save overwrites the value stored under key.
func (s *Store) Save(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warnw("encode value failed", "key", key, "error", err)
		return
	}
	if err := s.backend.Put(s.key(key), data); err != nil {
		s.logger.Warnw("save failed", "key", key, "error", err)
	}
}

// Load decodes the value stored under key into dest and reports whether a
// value was found. Backend and decode failures count as absent.
func (s *Store) Load(key string, dest any) bool {
	found, err := s.LoadErr(key, dest)
	if err != nil {
		s.logger.Warnw("load failed", "key", key, "error", err)
	}
	return found
}

// LoadErr is Load for callers that must tell a missing key from a failed
// read: a missing key yields (false, nil), a backend or decode failure
// yields (false, err).
func (s *Store) LoadErr(key string, dest any) (bool, error) {
	data, err := s.backend.Get(s.key(key))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(key string) {
	if err := s.backend.Delete(s.key(key)); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warnw("delete failed", "key", key, "error", err)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
