package clickhouse

import (
	"context"
	"fmt"

	"cartstorm/internal/domain"
	"cartstorm/internal/storage"
)

// CycleStatsStore implements storage.CycleStatsStore using ClickHouse.
// The archive is append-only; rows are never updated or deleted.
type CycleStatsStore struct {
	conn *Conn
}

// NewCycleStatsStore creates a new CycleStatsStore.
func NewCycleStatsStore(conn *Conn) *CycleStatsStore {
	return &CycleStatsStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CycleStatsStore = (*CycleStatsStore)(nil)

// InsertBulk appends rows in a single batch.
func (s *CycleStatsStore) InsertBulk(ctx context.Context, rows []*domain.CycleStatsRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO cycle_stats (
			run_id, cycle_index, simulated_at_ms, dispatched, skipped,
			successes, abandoned, failures, rate_limited, limiter_rate, budget
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		if r == nil {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			r.RunID, r.CycleIndex, r.SimulatedAtMs, r.Dispatched, r.Skipped,
			r.Successes, r.Abandoned, r.Failures, r.RateLimited, r.LimiterRate, r.Budget,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// SelectByRun returns the run's cycle history ordered by cycle index.
func (s *CycleStatsStore) SelectByRun(ctx context.Context, runID string) ([]*domain.CycleStatsRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT run_id, cycle_index, simulated_at_ms, dispatched, skipped,
		       successes, abandoned, failures, rate_limited, limiter_rate, budget
		FROM cycle_stats
		WHERE run_id = ?
		ORDER BY cycle_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycle stats: %w", err)
	}
	defer rows.Close()

	var result []*domain.CycleStatsRow
	for rows.Next() {
		r := &domain.CycleStatsRow{}
		err := rows.Scan(
			&r.RunID, &r.CycleIndex, &r.SimulatedAtMs, &r.Dispatched, &r.Skipped,
			&r.Successes, &r.Abandoned, &r.Failures, &r.RateLimited, &r.LimiterRate, &r.Budget,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cycle stats row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
