// Package simclock maps real elapsed time to simulated time.
package simclock

import (
	"errors"
	"time"
)

// ErrInvalidScale is returned when the scale factor is below 1.
var ErrInvalidScale = errors.New("time scale must be >= 1")

// Clock converts real elapsed time into simulated time via a fixed
// scale factor. The scale is immutable for the duration of a run; the
// anchors move only on Rebase during checkpoint restore.
type Clock struct {
	scale     float64
	realStart time.Time
	simStart  time.Time
	nowFn     func() time.Time // injectable for deterministic tests
}

// Option configures a Clock.
type Option func(*Clock)

// WithNowFunc sets a custom real-time source.
func WithNowFunc(now func() time.Time) Option {
	return func(c *Clock) {
		c.nowFn = now
	}
}

// New creates a clock anchored at the current real time.
// simulatedStart is where simulated time begins.
func New(scale float64, simulatedStart time.Time, opts ...Option) (*Clock, error) {
	if scale < 1 {
		return nil, ErrInvalidScale
	}
	c := &Clock{
		scale:    scale,
		simStart: simulatedStart,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.realStart = c.nowFn()
	return c, nil
}

// Now returns the current simulated time:
// simStart + (realNow - realStart) * scale.
func (c *Clock) Now() time.Time {
	elapsed := c.nowFn().Sub(c.realStart)
	return c.simStart.Add(time.Duration(float64(elapsed) * c.scale))
}

// Rebase re-anchors the clock at the given simulated time.
// Used only when restoring from a checkpoint.
func (c *Clock) Rebase(simulatedTime time.Time) {
	c.realStart = c.nowFn()
	c.simStart = simulatedTime
}

// Scale returns the immutable scale factor.
func (c *Clock) Scale() float64 {
	return c.scale
}

// RealElapsed returns real time elapsed since the last anchor.
func (c *Clock) RealElapsed() time.Duration {
	return c.nowFn().Sub(c.realStart)
}
