package reporting

import "time"

// Report represents the post-run summary structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string

	// Run Summary
	RunSummary RunSummary

	// Outcome breakdown (sorted by terminal state)
	Outcomes []OutcomeRow

	// Failure breakdown (sorted by error kind)
	Failures []FailureRow

	// Per-cycle history (sorted by cycle_index)
	Cycles []CycleRow
}

// RunSummary contains headline numbers for the run.
type RunSummary struct {
	CyclesCompleted    int64
	AgentsDispatched   int64
	Successes          int64
	Abandoned          int64
	Failures           int64
	Skips              int64
	BreakerTrips       int64
	SuccessRate        float64 // successes / dispatched, 0 if none dispatched
	SimulatedEnd       int64   // Unix ms
	RealElapsedSeconds float64
	FinalLimiterRate   float64
	FinalBudget        int
	BreakerOpen        bool
}

// OutcomeRow represents one terminal state count.
type OutcomeRow struct {
	Terminal string
	Count    int64
	Share    float64 // fraction of dispatched agents, 0 if none
}

// FailureRow represents one error-kind count.
type FailureRow struct {
	Kind  string
	Count int64
}

// CycleRow represents one cycle in the history table.
type CycleRow struct {
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
