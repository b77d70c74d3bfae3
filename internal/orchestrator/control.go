package orchestrator

import (
	"fmt"
	"time"

	"cartstorm/internal/breaker"
	"cartstorm/internal/domain"
)

// Status is the read-only view exposed to the control surface and the
// status feed. Safe to call from any goroutine.
type Status struct {
	RunID          string                     `json:"run_id"`
	State          State                      `json:"state"`
	CycleIndex     int64                      `json:"cycle_index"`
	SimulatedAtMs  int64                      `json:"simulated_at_ms"`
	InFlight       int                        `json:"in_flight"`
	Dispatched     int64                      `json:"dispatched"`
	Successes      int64                      `json:"successes"`
	Abandoned      int64                      `json:"abandoned"`
	Failures       int64                      `json:"failures"`
	Skips          int64                      `json:"skips"`
	FailuresByKind map[domain.ErrorKind]int64 `json:"failures_by_kind"`
	Breaker        breaker.Snapshot           `json:"breaker"`
	LimiterRate    float64                    `json:"limiter_rate"`
	Budget         int                        `json:"budget"`
}

// Status snapshots the current run state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	byKind := make(map[domain.ErrorKind]int64, len(o.stats.FailuresByKind))
	for k, v := range o.stats.FailuresByKind {
		byKind[k] = v
	}
	s := Status{
		RunID:          o.runID,
		State:          o.state,
		CycleIndex:     o.cycleIndex,
		InFlight:       o.inFlight,
		Dispatched:     o.stats.AgentsDispatched,
		Successes:      o.stats.Successes,
		Abandoned:      o.stats.Abandoned,
		Failures:       o.stats.Failures,
		Skips:          o.stats.Skips,
		FailuresByKind: byKind,
	}
	o.mu.Unlock()

	s.SimulatedAtMs = o.clock.Now().UnixMilli()
	s.Breaker = o.breaker.Snapshot()
	s.LimiterRate = o.limiter.Rate()
	s.Budget = o.controller.Budget()
	return s
}

// Pause moves a running simulation to Paused. The current cycle
// finishes; no new cycle starts until Resume.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotRunning, o.state)
	}
	o.mu.Unlock()

	o.setState(StatePaused)
	o.logger.Printf("[orchestrator] paused by operator")
	return nil
}

// Resume moves a paused simulation back to Running. If the breaker is
// open it must be reset first; resume and breaker reset are separate
// operator actions.
func (o *Orchestrator) Resume() error {
	if o.breaker.Open() {
		return ErrBreakerOpen
	}

	o.mu.Lock()
	if o.state != StatePaused {
		o.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotPaused, o.state)
	}
	o.mu.Unlock()

	o.setState(StateRunning)
	o.logger.Printf("[orchestrator] resumed")
	return nil
}

// ResetBreaker manually closes the circuit breaker.
func (o *Orchestrator) ResetBreaker() {
	o.breaker.ManualReset()
	o.metrics.RecordBreakerReset()
	o.logger.Printf("[orchestrator] breaker manually reset")
}

// CheckpointNow saves a checkpoint immediately, outside the periodic
// schedule.
func (o *Orchestrator) CheckpointNow() error {
	if o.checkpoints == nil {
		return fmt.Errorf("checkpointing is disabled")
	}
	start := time.Now()
	if err := o.checkpoints.Save(o.buildCheckpoint()); err != nil {
		return err
	}
	o.metrics.RecordCheckpoint(time.Since(start).Seconds())
	return nil
}

// Stop requests a graceful stop: no new launches, in-flight workflows
// finish within the drain timeout, a final checkpoint is written.
// Safe to call multiple times.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		o.logger.Printf("[orchestrator] stop requested")
	})
}
