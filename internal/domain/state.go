package domain

// AgentRuntimeState tracks per-agent progress across cycles.
// Owned exclusively by the orchestrator; mutated once per cycle after
// the agent's workflow returns, never shared between concurrent
// workflows.
type AgentRuntimeState struct {
	AgentID             string        `json:"agent_id"`
	LastCycleCompleted  int64         `json:"last_cycle_completed"`
	LastAction          TerminalState `json:"last_action"`
	ShoppedThisCycle    bool          `json:"shopped_this_cycle"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// AgentFailure identifies one failed agent within a cycle.
type AgentFailure struct {
	AgentID string    `json:"agent_id"`
	Kind    ErrorKind `json:"kind"`
}

// CycleResult aggregates one cycle's outcomes. Built once per cycle,
// consumed for stats and checkpointing, then discarded.
type CycleResult struct {
	CycleIndex    int64          `json:"cycle_index"`
	SimulatedAtMs int64          `json:"simulated_at_ms"`
	Dispatched    int            `json:"dispatched"`
	Skipped       int            `json:"skipped"`
	Successes     int            `json:"successes"`
	Abandoned     int            `json:"abandoned"`
	Failures      []AgentFailure `json:"failures"`
	RateLimited   int            `json:"rate_limited"` // failures where Kind == RATE_LIMITED
}

// Record folds one outcome into the cycle result.
func (r *CycleResult) Record(o *AgentOutcome) {
	switch o.Terminal {
	case TerminalSkipped:
		r.Skipped++
	case TerminalCheckoutComplete:
		r.Successes++
	case TerminalCheckoutAbandoned:
		r.Abandoned++
	case TerminalCheckoutFailed:
		r.Failures = append(r.Failures, AgentFailure{AgentID: o.AgentID, Kind: o.ErrKind})
		if o.ErrKind == ErrorKindRateLimited {
			r.RateLimited++
		}
	}
}
