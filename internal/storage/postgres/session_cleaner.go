package postgres

import (
	"context"
	"fmt"

	"cartstorm/internal/storage"
)

// SessionCleaner implements storage.SessionCleaner using PostgreSQL.
type SessionCleaner struct {
	pool *Pool
}

// NewSessionCleaner creates a new SessionCleaner.
func NewSessionCleaner(pool *Pool) *SessionCleaner {
	return &SessionCleaner{pool: pool}
}

// Compile-time interface check.
var _ storage.SessionCleaner = (*SessionCleaner)(nil)

// Track upserts a session record with the given status.
func (s *SessionCleaner) Track(ctx context.Context, runID, sessionID, agentID, status string) error {
	query := `
		INSERT INTO shop_sessions (session_id, run_id, agent_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, sessionID, runID, agentID, status)
	if err != nil {
		return fmt.Errorf("track session: %w", err)
	}
	return nil
}

// AbandonOrphans marks the run's in-progress sessions abandoned and
// returns how many rows were updated.
func (s *SessionCleaner) AbandonOrphans(ctx context.Context, runID string) (int64, error) {
	query := `
		UPDATE shop_sessions
		SET status = 'abandoned', updated_at = now()
		WHERE run_id = $1 AND status = 'in_progress'
	`

	tag, err := s.pool.Exec(ctx, query, runID)
	if err != nil {
		return 0, fmt.Errorf("abandon orphan sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
