package domain

// AggregateStats accumulates run-wide counters. Serialized into
// checkpoints and reported in the final summary.
type AggregateStats struct {
	CyclesCompleted  int64               `json:"cycles_completed"`
	AgentsDispatched int64               `json:"agents_dispatched"`
	Successes        int64               `json:"successes"`
	Abandoned        int64               `json:"abandoned"`
	Failures         int64               `json:"failures"`
	Skips            int64               `json:"skips"`
	BreakerTrips     int64               `json:"breaker_trips"`
	FailuresByKind   map[ErrorKind]int64 `json:"failures_by_kind"`
}

// NewAggregateStats returns zeroed stats with the kind map allocated.
func NewAggregateStats() *AggregateStats {
	return &AggregateStats{FailuresByKind: make(map[ErrorKind]int64)}
}

// Fold accumulates a finished cycle into the run totals.
func (s *AggregateStats) Fold(r *CycleResult) {
	s.CyclesCompleted++
	s.AgentsDispatched += int64(r.Dispatched)
	s.Successes += int64(r.Successes)
	s.Abandoned += int64(r.Abandoned)
	s.Skips += int64(r.Skipped)
	s.Failures += int64(len(r.Failures))
	if s.FailuresByKind == nil {
		s.FailuresByKind = make(map[ErrorKind]int64)
	}
	for _, f := range r.Failures {
		s.FailuresByKind[f.Kind]++
	}
}

// Checkpoint is a durable snapshot of simulation progress.
// Immutable once written; superseded checkpoints are pruned.
type Checkpoint struct {
	RunID              string                        `json:"run_id"`
	SavedAtMs          int64                         `json:"saved_at_ms"`
	CycleIndex         int64                         `json:"cycle_index"`
	SimulatedAtMs      int64                         `json:"simulated_at_ms"`
	RealElapsedSeconds float64                       `json:"real_elapsed_seconds"`
	Stats              *AggregateStats               `json:"stats"`
	Agents             map[string]*AgentRuntimeState `json:"agents"`
}

// CycleStatsRow is one cycle's aggregate archived to ClickHouse for
// post-run analysis.
type CycleStatsRow struct {
	RunID         string
	CycleIndex    int64
	SimulatedAtMs int64
	Dispatched    int32
	Skipped       int32
	Successes     int32
	Abandoned     int32
	Failures      int32
	RateLimited   int32
	LimiterRate   float64
	Budget        int32
}
