// Package concurrency computes the per-cycle parallelism budget for
// agent workflows from observed load.
package concurrency

import "sync"

// Default watermarks and adjustment step divisor.
const (
	DefaultLowWater  = 0.5
	DefaultHighWater = 0.85
)

// Sample is one cycle's load observation.
type Sample struct {
	// Utilization is the fraction of the cycle interval spent busy
	// dispatching and collecting workflows, in [0,1+].
	Utilization float64
	// Pressure is the fraction of dispatched workflows that ended
	// rate-limited, in [0,1].
	Pressure float64
}

// Controller adjusts the concurrent workflow budget once per cycle:
// shrink toward the floor above the high-water mark, grow toward the
// ceiling below the low-water mark, hold in between. Growth is
// additive, shrink is multiplicative (halving), so overload backs off
// faster than recovery ramps up.
type Controller struct {
	mu        sync.Mutex
	budget    int
	floor     int
	ceiling   int
	step      int
	lowWater  float64
	highWater float64
}

// Config for creating a Controller.
type Config struct {
	Base      int // initial budget
	Floor     int
	Ceiling   int
	Step      int     // additive growth per cycle; default max(1, Base/10)
	LowWater  float64 // default DefaultLowWater
	HighWater float64 // default DefaultHighWater
}

// New creates a Controller clamped to [Floor, Ceiling].
func New(cfg Config) *Controller {
	step := cfg.Step
	if step <= 0 {
		step = cfg.Base / 10
		if step < 1 {
			step = 1
		}
	}
	low := cfg.LowWater
	if low <= 0 {
		low = DefaultLowWater
	}
	high := cfg.HighWater
	if high <= 0 {
		high = DefaultHighWater
	}

	c := &Controller{
		budget:    cfg.Base,
		floor:     cfg.Floor,
		ceiling:   cfg.Ceiling,
		step:      step,
		lowWater:  low,
		highWater: high,
	}
	c.budget = clamp(c.budget, c.floor, c.ceiling)
	return c
}

// Budget returns the currently allowed concurrent workflow count.
func (c *Controller) Budget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget
}

// Observe folds one fresh cycle sample into the budget. Called exactly
// once per cycle at the boundary, never mid-cycle, to avoid
// oscillation.
func (c *Controller) Observe(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	load := s.Utilization + s.Pressure

	switch {
	case load > c.highWater:
		c.budget = clamp(c.budget/2, c.floor, c.ceiling)
	case load < c.lowWater:
		c.budget = clamp(c.budget+c.step, c.floor, c.ceiling)
	}
	// In the dead band the budget holds.
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
