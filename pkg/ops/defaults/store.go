package defaults

import (
	"context"
	"sync"

	"github.com/openfroyo/up/pkg/merge"
)

// Store persists preference values by domain and key.
type Store interface {
	// Read returns the stored value and whether one exists.
	Read(ctx context.Context, domain, key string) (merge.Value, bool, error)
	// Write replaces the stored value.
	Write(ctx context.Context, domain, key string, value merge.Value) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string]merge.Value
	writes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]map[string]merge.Value)}
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context, domain, key string) (merge.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[domain][key]
	return v, ok, nil
}

// Write implements Store.
func (s *MemoryStore) Write(_ context.Context, domain, key string, value merge.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[domain] == nil {
		s.values[domain] = make(map[string]merge.Value)
	}
	s.values[domain][key] = value
	s.writes++
	return nil
}

// Writes returns how many times Write was called.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}
