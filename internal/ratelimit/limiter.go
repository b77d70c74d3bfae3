// Package ratelimit bounds the outbound call rate to the downstream
// shopping API with an adaptive token bucket.
package ratelimit

import (
	"sync"
	"time"
)

// Default adaptive rate bounds relative to the configured refill rate.
const (
	DefaultMinRateFraction = 0.1
	growthFactor           = 1.1
)

// Snapshot is a read-only view of the bucket for status and metrics.
type Snapshot struct {
	Capacity float64 `json:"capacity"`
	Tokens   float64 `json:"tokens"`
	Rate     float64 `json:"refill_per_second"`
}

// Limiter is an adaptive token bucket. Acquire never blocks and never
// fails; it returns the wait the caller must observe before issuing
// its call. The refill rate halves on real 429-class rejections and
// grows back toward the configured ceiling on accepted calls.
type Limiter struct {
	mu        sync.Mutex
	capacity  float64
	tokens    float64
	rate      float64 // tokens per second
	floorRate float64
	ceilRate  float64
	last      time.Time
	nowFn     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRateBounds sets the adaptive floor and ceiling for the refill rate.
func WithRateBounds(floor, ceiling float64) Option {
	return func(l *Limiter) {
		l.floorRate = floor
		l.ceilRate = ceiling
	}
}

// WithNowFunc sets a custom time source.
func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) {
		l.nowFn = now
	}
}

// New creates a full bucket. The ceiling defaults to refillPerSecond
// and the floor to DefaultMinRateFraction of it.
func New(capacity, refillPerSecond float64, opts ...Option) *Limiter {
	l := &Limiter{
		capacity:  capacity,
		tokens:    capacity,
		rate:      refillPerSecond,
		floorRate: refillPerSecond * DefaultMinRateFraction,
		ceilRate:  refillPerSecond,
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.last = l.nowFn()
	return l
}

// Acquire debits cost tokens and returns the wait the caller must
// observe before proceeding. Holds the lock only for arithmetic.
func (l *Limiter) Acquire(cost float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	if l.tokens >= cost {
		l.tokens -= cost
		return 0
	}

	// Not enough credit: reserve the deficit by pushing the refill
	// anchor into the future so tokens stay within [0, capacity].
	deficit := cost - l.tokens
	wait := time.Duration(deficit / l.rate * float64(time.Second))
	l.tokens = 0
	l.last = l.last.Add(wait)
	return wait
}

// ProjectedWait reports the wait Acquire(cost) would currently return
// without debiting anything.
func (l *Limiter) ProjectedWait(cost float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.tokens >= cost {
		return 0
	}
	return time.Duration((cost - l.tokens) / l.rate * float64(time.Second))
}

// OnRejected halves the refill rate in response to a real 429-class
// signal, bounded by the floor.
func (l *Limiter) OnRejected() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	l.rate /= 2
	if l.rate < l.floorRate {
		l.rate = l.floorRate
	}
}

// OnAccepted grows the refill rate toward the ceiling.
func (l *Limiter) OnAccepted() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	l.rate *= growthFactor
	if l.rate > l.ceilRate {
		l.rate = l.ceilRate
	}
}

// Rate returns the current refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Snapshot returns the current bucket state.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	return Snapshot{Capacity: l.capacity, Tokens: l.tokens, Rate: l.rate}
}

// refillLocked credits elapsed*rate tokens, capped at capacity.
// Caller must hold l.mu. If the anchor sits in the future because of
// reserved debt, no credit accrues until real time catches up.
func (l *Limiter) refillLocked() {
	now := l.nowFn()
	elapsed := now.Sub(l.last)
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed.Seconds() * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.last = now
}
