package storage

import (
	"context"

	"cartstorm/internal/domain"
)

// PersonaStore supplies the shopper population. Read-only after start.
type PersonaStore interface {
	// LoadAll returns every persona, validated. Returns a wrapped
	// ErrInvalidInput if any record fails validation.
	LoadAll(ctx context.Context) ([]*domain.AgentDescriptor, error)
}

// SessionCleaner is the compensating cleanup hook into the external
// shop database: after a crash restore it marks sessions the dead run
// left "in progress" as abandoned so carts do not leak.
type SessionCleaner interface {
	// AbandonOrphans marks the run's in-progress sessions abandoned and
	// returns how many were swept.
	AbandonOrphans(ctx context.Context, runID string) (int64, error)
}

// CycleStatsStore archives per-cycle aggregates for post-run analysis.
type CycleStatsStore interface {
	// InsertBulk appends rows. The archive is append-only.
	InsertBulk(ctx context.Context, rows []*domain.CycleStatsRow) error
}
