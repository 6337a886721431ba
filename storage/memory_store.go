package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps the blob in process memory. Useful for tests and for
// ephemeral clients that should not outlive the process.
type MemoryStore struct {
	mu   sync.RWMutex
	blob []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Storage.Load.
func (s *MemoryStore) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.blob == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(s.blob))
	copy(out, s.blob)

	return out, nil
}

// Save implements Storage.Save.
func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blob = make([]byte, len(data))
	copy(s.blob, data)

	return nil
}

// Clear implements Storage.Clear.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blob = nil

	return nil
}
