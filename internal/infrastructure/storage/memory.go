package storage

import (
	"context"
	"sync"
	"time"

	"contentmaker/internal/domain"
	"contentmaker/internal/ports"
)

// MemoryStore is an in-memory ItemStore with the same contract as the
// Postgres adapter. It backs tests and DSN-less dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]domain.Item
	failures map[string]int
	now      func() time.Time
}

var _ ports.ItemStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    map[string]domain.Item{},
		failures: map[string]int{},
		now:      time.Now,
	}
}

// Exists answers seen-set membership for an identity.
func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok, nil
}

// Save keeps the first item stored under an identity; later saves of the same
// identity are no-ops.
func (s *MemoryStore) Save(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return nil
	}
	s.items[item.ID] = item
	return nil
}

// Prune deletes items strictly older than now minus olderThan. An item created
// exactly at the horizon is retained.
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, item := range s.items {
		if item.CreatedAt.Before(cutoff) {
			delete(s.items, id)
			deleted++
		}
	}
	return deleted, nil
}

// RecordEnrichFailure bumps the per-identity failure counter.
func (s *MemoryStore) RecordEnrichFailure(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id]++
	return s.failures[id], nil
}

// Get returns the stored item for an identity, if present.
func (s *MemoryStore) Get(id string) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// Len reports the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
