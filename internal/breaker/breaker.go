// Package breaker halts new agent launches once a per-cycle failure
// ratio is exceeded. Fail-fast over auto-recovery: an open breaker
// stays open until an operator resets it.
package breaker

import (
	"math"
	"sync"
	"time"
)

// Mode is the breaker state.
type Mode string

// Breaker modes. OPEN is sticky across cycle boundaries.
const (
	ModeClosed Mode = "CLOSED"
	ModeOpen   Mode = "OPEN"
)

// Snapshot is a read-only view for status reporting.
type Snapshot struct {
	Mode              Mode      `json:"mode"`
	FailuresThisCycle int       `json:"failures_this_cycle"`
	TotalFailures     int64     `json:"total_failures"`
	Threshold         int       `json:"threshold"`
	OpenedAt          time.Time `json:"opened_at,omitzero"`
}

// Breaker counts non-retryable failures and trips OPEN when a cycle
// exceeds ceil(totalAgents * thresholdPercent) failures.
type Breaker struct {
	mu                sync.Mutex
	mode              Mode
	failuresThisCycle int
	totalFailures     int64
	openedAt          time.Time

	threshold int
	onOpen    func(Snapshot)
	nowFn     func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithOnOpen sets the notification callback fired once per trip.
// The callback runs with the breaker lock held; keep it short.
func WithOnOpen(fn func(Snapshot)) Option {
	return func(b *Breaker) {
		b.onOpen = fn
	}
}

// WithNowFunc sets a custom time source.
func WithNowFunc(now func() time.Time) Option {
	return func(b *Breaker) {
		b.nowFn = now
	}
}

// New creates a closed breaker sized for the agent population.
// thresholdPercent is a fraction, e.g. 0.05 for 5%.
func New(totalAgents int, thresholdPercent float64, opts ...Option) *Breaker {
	b := &Breaker{
		mode:      ModeClosed,
		threshold: int(math.Ceil(float64(totalAgents) * thresholdPercent)),
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordFailure increments the failure counters and trips the breaker
// when this cycle's failures exceed the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failuresThisCycle++
	b.totalFailures++

	if b.mode == ModeClosed && b.failuresThisCycle > b.threshold {
		b.mode = ModeOpen
		b.openedAt = b.nowFn()
		if b.onOpen != nil {
			b.onOpen(b.snapshotLocked())
		}
	}
}

// ResetCycle zeroes the per-cycle counter. Called at cycle boundaries
// only; an OPEN breaker stays open.
func (b *Breaker) ResetCycle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failuresThisCycle = 0
}

// ManualReset closes the breaker. This is the only transition out of
// OPEN; root causes need human diagnosis before dispatch resumes.
func (b *Breaker) ManualReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mode = ModeClosed
	b.failuresThisCycle = 0
	b.openedAt = time.Time{}
}

// Mode returns the current mode.
func (b *Breaker) Mode() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// Open reports whether the breaker is open.
func (b *Breaker) Open() bool {
	return b.Mode() == ModeOpen
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:              b.mode,
		FailuresThisCycle: b.failuresThisCycle,
		TotalFailures:     b.totalFailures,
		Threshold:         b.threshold,
		OpenedAt:          b.openedAt,
	}
}
