package memory

import (
	"context"
	"sync"

	"cartstorm/internal/domain"
	"cartstorm/internal/storage"
)

// CycleStatsStore is an in-memory implementation of
// storage.CycleStatsStore.
type CycleStatsStore struct {
	mu   sync.RWMutex
	rows []*domain.CycleStatsRow
}

// NewCycleStatsStore creates an empty store.
func NewCycleStatsStore() *CycleStatsStore {
	return &CycleStatsStore{}
}

// Compile-time interface check.
var _ storage.CycleStatsStore = (*CycleStatsStore)(nil)

// InsertBulk appends rows.
func (s *CycleStatsStore) InsertBulk(_ context.Context, rows []*domain.CycleStatsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		if r == nil {
			return storage.ErrInvalidInput
		}
		rowCopy := *r
		s.rows = append(s.rows, &rowCopy)
	}
	return nil
}

// All returns a copy of the archived rows in insertion order.
func (s *CycleStatsStore) All() []*domain.CycleStatsRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.CycleStatsRow, len(s.rows))
	for i, r := range s.rows {
		rowCopy := *r
		out[i] = &rowCopy
	}
	return out
}
