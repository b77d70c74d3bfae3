package postgres

import (
	"context"
	"fmt"

	"cartstorm/internal/domain"
	"cartstorm/internal/storage"
)

// PersonaStore implements storage.PersonaStore using PostgreSQL.
type PersonaStore struct {
	pool *Pool
}

// NewPersonaStore creates a new PersonaStore.
func NewPersonaStore(pool *Pool) *PersonaStore {
	return &PersonaStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PersonaStore = (*PersonaStore)(nil)

// Insert adds a persona. Returns ErrDuplicateKey if agent_id exists.
func (s *PersonaStore) Insert(ctx context.Context, d *domain.AgentDescriptor) error {
	if d == nil {
		return storage.ErrInvalidInput
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO personas (
			agent_id, price_sensitivity, shopping_frequency, hour_affinity, day_affinity, budget_cents
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		d.AgentID,
		d.PriceSensitivity,
		d.ShoppingFrequency,
		d.HourAffinity,
		d.DayAffinity,
		d.BudgetCents,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert persona: %w", err)
	}
	return nil
}

// LoadAll retrieves every persona ordered by agent_id, validating each
// record before returning.
func (s *PersonaStore) LoadAll(ctx context.Context) ([]*domain.AgentDescriptor, error) {
	query := `
		SELECT agent_id, price_sensitivity, shopping_frequency, hour_affinity, day_affinity, budget_cents
		FROM personas
		ORDER BY agent_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	defer rows.Close()

	var descriptors []*domain.AgentDescriptor
	for rows.Next() {
		var d domain.AgentDescriptor

		err := rows.Scan(
			&d.AgentID,
			&d.PriceSensitivity,
			&d.ShoppingFrequency,
			&d.HourAffinity,
			&d.DayAffinity,
			&d.BudgetCents,
		)
		if err != nil {
			return nil, fmt.Errorf("scan persona row: %w", err)
		}

		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		descriptors = append(descriptors, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persona rows: %w", err)
	}

	return descriptors, nil
}
