package reporting

import (
	"sort"
	"time"

	"cartstorm/internal/domain"
)

// Input bundles everything the generator needs: the last checkpoint (or
// final in-memory snapshot) plus the archived per-cycle rows.
type Input struct {
	Checkpoint  *domain.Checkpoint
	Cycles      []*domain.CycleStatsRow
	BreakerOpen bool
	FinalRate   float64
	FinalBudget int
}

// Generator produces reports from run data.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete run report.
func (g *Generator) Generate(in *Input) *Report {
	cp := in.Checkpoint
	stats := cp.Stats
	if stats == nil {
		stats = domain.NewAggregateStats()
	}

	summary := RunSummary{
		CyclesCompleted:    stats.CyclesCompleted,
		AgentsDispatched:   stats.AgentsDispatched,
		Successes:          stats.Successes,
		Abandoned:          stats.Abandoned,
		Failures:           stats.Failures,
		Skips:              stats.Skips,
		BreakerTrips:       stats.BreakerTrips,
		SimulatedEnd:       cp.SimulatedAtMs,
		RealElapsedSeconds: cp.RealElapsedSeconds,
		FinalLimiterRate:   in.FinalRate,
		FinalBudget:        in.FinalBudget,
		BreakerOpen:        in.BreakerOpen,
	}
	if stats.AgentsDispatched > 0 {
		summary.SuccessRate = float64(stats.Successes) / float64(stats.AgentsDispatched)
	}

	return &Report{
		GeneratedAt: g.now(),
		RunID:       cp.RunID,
		RunSummary:  summary,
		Outcomes:    g.generateOutcomes(stats),
		Failures:    g.generateFailures(stats),
		Cycles:      g.generateCycles(in.Cycles),
	}
}

// generateOutcomes builds the terminal-state breakdown.
func (g *Generator) generateOutcomes(stats *domain.AggregateStats) []OutcomeRow {
	rows := []OutcomeRow{
		{Terminal: string(domain.TerminalCheckoutComplete), Count: stats.Successes},
		{Terminal: string(domain.TerminalCheckoutAbandoned), Count: stats.Abandoned},
		{Terminal: string(domain.TerminalCheckoutFailed), Count: stats.Failures},
		{Terminal: string(domain.TerminalSkipped), Count: stats.Skips},
	}

	// Share is relative to dispatched agents; skips are not dispatched,
	// so their share stays zero.
	if stats.AgentsDispatched > 0 {
		for i := range rows {
			if rows[i].Terminal == string(domain.TerminalSkipped) {
				continue
			}
			rows[i].Share = float64(rows[i].Count) / float64(stats.AgentsDispatched)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Terminal < rows[j].Terminal
	})
	return rows
}

// generateFailures builds the error-kind breakdown, sorted by kind.
func (g *Generator) generateFailures(stats *domain.AggregateStats) []FailureRow {
	var rows []FailureRow
	for kind, count := range stats.FailuresByKind {
		rows = append(rows, FailureRow{Kind: string(kind), Count: count})
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Kind < rows[j].Kind
	})
	return rows
}

// generateCycles builds the per-cycle history sorted by cycle_index.
func (g *Generator) generateCycles(cycles []*domain.CycleStatsRow) []CycleRow {
	rows := make([]CycleRow, len(cycles))
	for i, c := range cycles {
		rows[i] = CycleRow{
			CycleIndex:    c.CycleIndex,
			SimulatedAtMs: c.SimulatedAtMs,
			Dispatched:    c.Dispatched,
			Skipped:       c.Skipped,
			Successes:     c.Successes,
			Abandoned:     c.Abandoned,
			Failures:      c.Failures,
			RateLimited:   c.RateLimited,
			LimiterRate:   c.LimiterRate,
			Budget:        c.Budget,
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].CycleIndex < rows[j].CycleIndex
	})
	return rows
}
