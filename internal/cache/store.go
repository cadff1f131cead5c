package cache

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmptyKey is returned when a store operation receives an empty key.
var ErrEmptyKey = errors.New("cache key must not be empty")

// Entry is one cached payload. Entries are replaced wholesale, never
// modified in place; Payload must be treated as read-only.
type Entry struct {
	// Key is the digest of Location.
	Key string

	// Location is the normalized location the payload was fetched from.
	Location string

	Payload   []byte
	FetchedAt time.Time

	// ContentHash is the algorithm-prefixed hash of Payload: the declared
	// hash when one was verified, otherwise its SHA-256.
	ContentHash string

	// Missing records that the location did not exist.
	Missing bool
}

// Store persists cache entries. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the entry for key, or nil and no error when absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores e, replacing any entry with the same key.
	Put(ctx context.Context, e *Entry) error

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps entries in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Entry)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Put implements Store. The payload is copied.
func (s *MemoryStore) Put(_ context.Context, e *Entry) error {
	if e == nil || e.Key == "" {
		return ErrEmptyKey
	}
	cp := *e
	cp.Payload = bytes.Clone(e.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[e.Key] = &cp
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
