// Package orchestrator composes the clock, limiter, concurrency
// controller, breaker, workflows and checkpoint store into the cycle
// loop that drives a simulation run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"cartstorm/internal/breaker"
	"cartstorm/internal/checkpoint"
	"cartstorm/internal/concurrency"
	"cartstorm/internal/domain"
	"cartstorm/internal/observability"
	"cartstorm/internal/ratelimit"
	"cartstorm/internal/simclock"
	"cartstorm/internal/storage"
)

// State is the orchestrator lifecycle state.
type State string

// Lifecycle states.
const (
	StateInitializing State = "INITIALIZING"
	StateRunning      State = "RUNNING"
	StatePaused       State = "PAUSED"
	StateDraining     State = "DRAINING"
	StateStopped      State = "STOPPED"
)

// Control errors.
var (
	ErrBreakerOpen = errors.New("circuit breaker is open; reset it before resuming")
	ErrNotPaused   = errors.New("run is not paused")
	ErrNotRunning  = errors.New("run is not running")
)

// WorkflowRunner executes one agent's cycle.
type WorkflowRunner interface {
	Run(ctx context.Context, desc *domain.AgentDescriptor, cycleIndex int64, simTime time.Time) *domain.AgentOutcome
}

// Broadcaster pushes status snapshots to live subscribers.
type Broadcaster interface {
	Broadcast(v any)
}

// Options for creating an Orchestrator.
type Options struct {
	RunID string // empty generates a UUID

	Clock       *simclock.Clock
	Limiter     *ratelimit.Limiter
	Controller  *concurrency.Controller
	Breaker     *breaker.Breaker
	Workflow    WorkflowRunner
	Checkpoints *checkpoint.Store // nil disables checkpointing

	Personas storage.PersonaStore
	Cleaner  storage.SessionCleaner  // nil skips restore cleanup
	Archive  storage.CycleStatsStore // nil disables cycle archiving

	Metrics *observability.Metrics // nil disables metrics
	Feed    Broadcaster            // nil disables the status feed

	TotalCycles   int64         // 0 runs until stopped
	CycleInterval time.Duration // real-time pace of one cycle
	// WarmupFractions ramp the eligible population over the first
	// cycles. Empty dispatches the full population from cycle one.
	WarmupFractions   []float64
	SkipAfterFailures int // bench agents after N consecutive failures; 0 disables
	DrainTimeout      time.Duration
	Resume            bool // restore from the latest checkpoint if present

	Logger *log.Logger
}

// Orchestrator owns all run state. One instance drives one run; the
// process can host several independent runs.
type Orchestrator struct {
	runID       string
	clock       *simclock.Clock
	limiter     *ratelimit.Limiter
	controller  *concurrency.Controller
	breaker     *breaker.Breaker
	workflow    WorkflowRunner
	checkpoints *checkpoint.Store
	personas    storage.PersonaStore
	cleaner     storage.SessionCleaner
	archive     storage.CycleStatsStore
	metrics     *observability.Metrics
	feed        Broadcaster
	logger      *log.Logger

	totalCycles       int64
	cycleInterval     time.Duration
	warmupFractions   []float64
	skipAfterFailures int
	drainTimeout      time.Duration
	resume            bool

	mu           sync.Mutex
	state        State
	stateChanged chan struct{} // closed and replaced on every transition
	cycleIndex   int64
	agents       []*domain.AgentDescriptor
	runtime      map[string]*domain.AgentRuntimeState
	stats        *domain.AggregateStats
	inFlight     int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// RunSummary is returned from Run regardless of how the run ended.
type RunSummary struct {
	RunID              string
	FinalState         State
	CycleIndex         int64
	SimulatedAtMs      int64
	RealElapsedSeconds float64
	Stats              *domain.AggregateStats
	BreakerOpen        bool
	FinalLimiterRate   float64
	FinalBudget        int
}

// New validates the options and creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Clock == nil {
		return nil, fmt.Errorf("orchestrator requires a clock")
	}
	if opts.Limiter == nil {
		return nil, fmt.Errorf("orchestrator requires a limiter")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("orchestrator requires a concurrency controller")
	}
	if opts.Breaker == nil {
		return nil, fmt.Errorf("orchestrator requires a breaker")
	}
	if opts.Workflow == nil {
		return nil, fmt.Errorf("orchestrator requires a workflow")
	}
	if opts.Personas == nil {
		return nil, fmt.Errorf("orchestrator requires a persona store")
	}
	if opts.CycleInterval <= 0 {
		return nil, fmt.Errorf("cycle interval must be positive, got %v", opts.CycleInterval)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}

	return &Orchestrator{
		runID:             runID,
		clock:             opts.Clock,
		limiter:           opts.Limiter,
		controller:        opts.Controller,
		breaker:           opts.Breaker,
		workflow:          opts.Workflow,
		checkpoints:       opts.Checkpoints,
		personas:          opts.Personas,
		cleaner:           opts.Cleaner,
		archive:           opts.Archive,
		metrics:           opts.Metrics,
		feed:              opts.Feed,
		logger:            logger,
		totalCycles:       opts.TotalCycles,
		cycleInterval:     opts.CycleInterval,
		warmupFractions:   opts.WarmupFractions,
		skipAfterFailures: opts.SkipAfterFailures,
		drainTimeout:      drainTimeout,
		resume:            opts.Resume,
		state:             StateInitializing,
		stateChanged:      make(chan struct{}),
		runtime:           make(map[string]*domain.AgentRuntimeState),
		stats:             domain.NewAggregateStats(),
		stopCh:            make(chan struct{}),
	}, nil
}

// RunID returns the run identifier.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the simulation until the target cycle count, a stop
// request, or context cancellation. It always returns a summary; the
// error is non-nil only for fatal failures.
func (o *Orchestrator) Run(ctx context.Context) (*RunSummary, error) {
	if err := o.initialize(ctx); err != nil {
		return o.summary(), fmt.Errorf("initialize run: %w", err)
	}

	// A stop request lets in-flight workflows finish but bounds the
	// wait: once the drain timeout passes, their contexts cancel.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-runCtx.Done():
		case <-o.stopCh:
			timer := time.NewTimer(o.drainTimeout)
			defer timer.Stop()
			select {
			case <-runCtx.Done():
			case <-timer.C:
				cancel()
			}
		}
	}()

	o.setState(StateRunning)
	o.logger.Printf("[orchestrator] run %s started with %d agents", o.runID, len(o.agents))

	if err := o.loop(runCtx); err != nil {
		// Fatal path: best-effort emergency checkpoint, then propagate.
		if o.checkpoints != nil {
			o.checkpoints.SaveEmergency(o.buildCheckpoint())
		}
		o.setState(StateStopped)
		return o.summary(), err
	}

	o.setState(StateDraining)
	if o.checkpoints != nil {
		if err := o.checkpoints.Save(o.buildCheckpoint()); err != nil {
			o.logger.Printf("[orchestrator] final checkpoint failed: %v", err)
		}
	}
	o.setState(StateStopped)

	s := o.summary()
	o.logger.Printf("[orchestrator] run %s stopped after %d cycles: %d dispatched, %d succeeded, %d failed",
		o.runID, s.CycleIndex, s.Stats.AgentsDispatched, s.Stats.Successes, s.Stats.Failures)
	return s, nil
}

// initialize loads the population and restores checkpointed state.
func (o *Orchestrator) initialize(ctx context.Context) error {
	agents, err := o.personas.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	if len(agents) == 0 {
		return fmt.Errorf("persona store returned an empty population")
	}

	o.mu.Lock()
	o.agents = agents
	for _, a := range agents {
		o.runtime[a.AgentID] = &domain.AgentRuntimeState{AgentID: a.AgentID}
	}
	o.mu.Unlock()

	if !o.resume || o.checkpoints == nil {
		return nil
	}

	cp, err := o.checkpoints.LoadLatest()
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil
		}
		return fmt.Errorf("load latest checkpoint: %w", err)
	}

	o.restore(cp)
	o.logger.Printf("[orchestrator] restored run %s at cycle %d", cp.RunID, cp.CycleIndex)

	// Crash-orphan compensation: sessions the dead run left in
	// progress are marked abandoned so carts do not leak.
	if o.cleaner != nil {
		swept, err := o.cleaner.AbandonOrphans(ctx, cp.RunID)
		if err != nil {
			return fmt.Errorf("abandon orphan sessions: %w", err)
		}
		if swept > 0 {
			o.logger.Printf("[orchestrator] swept %d orphaned sessions", swept)
		}
	}
	return nil
}

// restore rehydrates owned state from a checkpoint.
func (o *Orchestrator) restore(cp *domain.Checkpoint) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.runID = cp.RunID
	o.cycleIndex = cp.CycleIndex
	if cp.Stats != nil {
		o.stats = cp.Stats
	}
	for id, st := range cp.Agents {
		if _, known := o.runtime[id]; known {
			stCopy := *st
			o.runtime[id] = &stCopy
		}
	}
	o.clock.Rebase(time.UnixMilli(cp.SimulatedAtMs))
}

// loop runs cycles until done. Returns nil on graceful stop.
func (o *Orchestrator) loop(ctx context.Context) error {
	for {
		if o.stopRequested(ctx) {
			return nil
		}
		if stopped := o.waitWhilePaused(ctx); stopped {
			return nil
		}

		o.mu.Lock()
		if o.totalCycles > 0 && o.cycleIndex >= o.totalCycles {
			o.mu.Unlock()
			return nil
		}
		o.cycleIndex++
		cycleIndex := o.cycleIndex
		o.mu.Unlock()

		cycleStart := time.Now()
		simTime := o.clock.Now()

		result := o.runCycle(ctx, cycleIndex, simTime)
		busy := time.Since(cycleStart)

		o.finishCycle(ctx, cycleIndex, simTime, result, busy)

		if o.checkpoints != nil && o.checkpoints.ShouldCheckpoint(cycleIndex) {
			saveStart := time.Now()
			if err := o.checkpoints.Save(o.buildCheckpoint()); err != nil {
				return fmt.Errorf("checkpoint at cycle %d: %w", cycleIndex, err)
			}
			o.metrics.RecordCheckpoint(time.Since(saveStart).Seconds())
		}

		// Breaker open moves the run to Paused; an operator must reset
		// the breaker and resume.
		if o.breaker.Open() {
			o.logger.Printf("[orchestrator] breaker open after cycle %d; pausing", cycleIndex)
			o.setState(StatePaused)
			continue
		}

		// Pace the next cycle.
		if remaining := o.cycleInterval - busy; remaining > 0 {
			if err := o.pace(ctx, remaining); err != nil {
				return nil
			}
		}
	}
}

// runCycle launches eligible agents bounded by the concurrency budget
// and collects their outcomes. Cycles are strictly sequential: this
// does not return until every launched workflow has.
func (o *Orchestrator) runCycle(ctx context.Context, cycleIndex int64, simTime time.Time) *domain.CycleResult {
	result := &domain.CycleResult{
		CycleIndex:    cycleIndex,
		SimulatedAtMs: simTime.UnixMilli(),
	}

	eligible := o.eligibleAgents(cycleIndex)
	budget := o.controller.Budget()
	sem := semaphore.NewWeighted(int64(budget))
	outcomes := make(chan *domain.AgentOutcome, len(eligible))

	var wg sync.WaitGroup
	launched := 0
	for _, desc := range eligible {
		// A stop request or an open breaker prevents new launches;
		// everything already in flight finishes and is recorded.
		if o.stopRequested(ctx) || o.breaker.Open() {
			break
		}

		if o.benched(desc.AgentID) {
			result.Skipped++
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		launched++
		wg.Add(1)
		o.trackInFlight(1)
		go func(desc *domain.AgentDescriptor) {
			defer wg.Done()
			defer sem.Release(1)
			defer o.trackInFlight(-1)

			out := o.workflow.Run(ctx, desc, cycleIndex, simTime)
			if out.Failed() {
				o.breaker.RecordFailure()
			}
			outcomes <- out
		}(desc)
	}

	wg.Wait()
	close(outcomes)

	result.Dispatched = launched
	for out := range outcomes {
		result.Record(out)
		o.updateRuntime(cycleIndex, out)
		o.metrics.RecordOutcome(string(out.Terminal))
		if out.Failed() {
			o.metrics.RecordFailure(string(out.ErrKind))
		}
	}
	return result
}

// finishCycle folds the result into run state and feeds the control
// loops. Called once per cycle after all workflows return.
func (o *Orchestrator) finishCycle(ctx context.Context, cycleIndex int64, simTime time.Time, result *domain.CycleResult, busy time.Duration) {
	tripped := o.breaker.Open()

	o.mu.Lock()
	o.stats.Fold(result)
	if tripped {
		o.stats.BreakerTrips++
	}
	o.mu.Unlock()

	// One fresh sample per cycle; never mid-cycle.
	sample := concurrency.Sample{
		Utilization: busy.Seconds() / o.cycleInterval.Seconds(),
	}
	if result.Dispatched > 0 {
		sample.Pressure = float64(result.RateLimited) / float64(result.Dispatched)
	}
	o.controller.Observe(sample)

	// Per-cycle breaker counter zeroes at the boundary; OPEN sticks.
	o.breaker.ResetCycle()
	if tripped {
		o.metrics.RecordBreakerTrip()
	}

	o.metrics.RecordCycle(result.Dispatched, result.Skipped, busy.Seconds())
	o.metrics.UpdateControls(o.limiter.Rate(), o.controller.Budget())
	if o.metrics != nil {
		o.metrics.SimulatedTimestamp.Set(float64(simTime.Unix()))
	}

	if o.archive != nil {
		row := &domain.CycleStatsRow{
			RunID:         o.runID,
			CycleIndex:    cycleIndex,
			SimulatedAtMs: result.SimulatedAtMs,
			Dispatched:    int32(result.Dispatched),
			Skipped:       int32(result.Skipped),
			Successes:     int32(result.Successes),
			Abandoned:     int32(result.Abandoned),
			Failures:      int32(len(result.Failures)),
			RateLimited:   int32(result.RateLimited),
			LimiterRate:   o.limiter.Rate(),
			Budget:        int32(o.controller.Budget()),
		}
		if err := o.archive.InsertBulk(ctx, []*domain.CycleStatsRow{row}); err != nil {
			o.logger.Printf("[orchestrator] archive cycle %d failed: %v", cycleIndex, err)
		}
	}

	if o.feed != nil {
		o.feed.Broadcast(o.Status())
	}
}

// eligibleAgents applies the warm-up ramp: cycle i draws the first
// floor(fraction*population) agents, never fewer than one.
func (o *Orchestrator) eligibleAgents(cycleIndex int64) []*domain.AgentDescriptor {
	o.mu.Lock()
	defer o.mu.Unlock()

	idx := cycleIndex - 1 // warm-up indexes from the first cycle
	if idx < 0 || idx >= int64(len(o.warmupFractions)) {
		return o.agents
	}

	count := int(math.Floor(o.warmupFractions[idx] * float64(len(o.agents))))
	if count < 1 {
		count = 1
	}
	if count > len(o.agents) {
		count = len(o.agents)
	}
	return o.agents[:count]
}

// benched reports whether the skip-after-failures policy excludes the
// agent this cycle.
func (o *Orchestrator) benched(agentID string) bool {
	if o.skipAfterFailures <= 0 {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runtime[agentID]
	return ok && st.ConsecutiveFailures >= o.skipAfterFailures
}

// updateRuntime folds one outcome into the agent's runtime state.
// Runtime records are partitioned per agent; the mutex only guards the
// map against concurrent Status readers.
func (o *Orchestrator) updateRuntime(cycleIndex int64, out *domain.AgentOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.runtime[out.AgentID]
	if !ok {
		return
	}
	st.LastCycleCompleted = cycleIndex
	st.LastAction = out.Terminal
	st.ShoppedThisCycle = out.Terminal != domain.TerminalSkipped
	if out.Failed() {
		st.ConsecutiveFailures++
	} else {
		st.ConsecutiveFailures = 0
	}
}

// buildCheckpoint snapshots owned state for persistence.
func (o *Orchestrator) buildCheckpoint() *domain.Checkpoint {
	o.mu.Lock()
	defer o.mu.Unlock()

	agents := make(map[string]*domain.AgentRuntimeState, len(o.runtime))
	for id, st := range o.runtime {
		stCopy := *st
		agents[id] = &stCopy
	}

	statsCopy := *o.stats
	statsCopy.FailuresByKind = make(map[domain.ErrorKind]int64, len(o.stats.FailuresByKind))
	for k, v := range o.stats.FailuresByKind {
		statsCopy.FailuresByKind[k] = v
	}

	return &domain.Checkpoint{
		RunID:              o.runID,
		SavedAtMs:          time.Now().UnixMilli(),
		CycleIndex:         o.cycleIndex,
		SimulatedAtMs:      o.clock.Now().UnixMilli(),
		RealElapsedSeconds: o.clock.RealElapsed().Seconds(),
		Stats:              &statsCopy,
		Agents:             agents,
	}
}

// summary snapshots the final run totals.
func (o *Orchestrator) summary() *RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	statsCopy := *o.stats
	return &RunSummary{
		RunID:              o.runID,
		FinalState:         o.state,
		CycleIndex:         o.cycleIndex,
		SimulatedAtMs:      o.clock.Now().UnixMilli(),
		RealElapsedSeconds: o.clock.RealElapsed().Seconds(),
		Stats:              &statsCopy,
		BreakerOpen:        o.breaker.Open(),
		FinalLimiterRate:   o.limiter.Rate(),
		FinalBudget:        o.controller.Budget(),
	}
}

// trackInFlight adjusts the in-flight workflow gauge.
func (o *Orchestrator) trackInFlight(delta int) {
	o.mu.Lock()
	o.inFlight += delta
	inFlight := o.inFlight
	o.mu.Unlock()
	if o.metrics != nil {
		o.metrics.InFlightAgents.Set(float64(inFlight))
	}
}

// stopRequested reports whether a stop or cancellation arrived.
func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	select {
	case <-o.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitWhilePaused blocks while the run is paused. Returns true if a
// stop or cancellation arrived while waiting.
func (o *Orchestrator) waitWhilePaused(ctx context.Context) bool {
	for {
		o.mu.Lock()
		if o.state != StatePaused {
			o.mu.Unlock()
			return false
		}
		changed := o.stateChanged
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return true
		case <-o.stopCh:
			return true
		case <-changed:
		}
	}
}

// pace sleeps out the remainder of the cycle interval, waking early on
// stop or cancellation.
func (o *Orchestrator) pace(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.stopCh:
		return errors.New("stopped")
	case <-timer.C:
		return nil
	}
}

// setState transitions the lifecycle state and wakes waiters.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	close(o.stateChanged)
	o.stateChanged = make(chan struct{})
	o.mu.Unlock()
	o.metrics.SetRunState(stateLabel(s))
}

func stateLabel(s State) string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

