package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"cartstorm/internal/domain"
	"cartstorm/internal/storage"
)

// PersonaStore is an in-memory implementation of storage.PersonaStore.
type PersonaStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AgentDescriptor // keyed by agent_id
}

// NewPersonaStore creates an empty in-memory persona store.
func NewPersonaStore() *PersonaStore {
	return &PersonaStore{data: make(map[string]*domain.AgentDescriptor)}
}

// Compile-time interface check.
var _ storage.PersonaStore = (*PersonaStore)(nil)

// NewPersonaStoreFromFile loads a JSON array of descriptors.
func NewPersonaStoreFromFile(path string) (*PersonaStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read personas file: %w", err)
	}
	var descriptors []*domain.AgentDescriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parse personas file: %w", err)
	}

	s := NewPersonaStore()
	for _, d := range descriptors {
		if err := s.Insert(context.Background(), d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Insert adds a persona. Returns ErrDuplicateKey if agent_id exists.
func (s *PersonaStore) Insert(_ context.Context, d *domain.AgentDescriptor) error {
	if d == nil {
		return storage.ErrInvalidInput
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[d.AgentID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	descCopy := copyDescriptor(d)
	s.data[d.AgentID] = descCopy
	return nil
}

// LoadAll returns all personas ordered by agent_id.
func (s *PersonaStore) LoadAll(_ context.Context) ([]*domain.AgentDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AgentDescriptor, 0, len(s.data))
	for _, d := range s.data {
		result = append(result, copyDescriptor(d))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

func copyDescriptor(d *domain.AgentDescriptor) *domain.AgentDescriptor {
	descCopy := *d
	descCopy.HourAffinity = append([]float64(nil), d.HourAffinity...)
	descCopy.DayAffinity = append([]float64(nil), d.DayAffinity...)
	return &descCopy
}
