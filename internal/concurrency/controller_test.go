package concurrency

import "testing"

func newTestController() *Controller {
	return New(Config{Base: 40, Floor: 5, Ceiling: 100})
}

func TestController_GrowBelowLowWater(t *testing.T) {
	c := newTestController()
	c.Observe(Sample{Utilization: 0.2})
	if got := c.Budget(); got != 44 {
		t.Errorf("budget after idle sample = %d, want 44", got)
	}
}

func TestController_ShrinkAboveHighWater(t *testing.T) {
	c := newTestController()
	c.Observe(Sample{Utilization: 0.95})
	if got := c.Budget(); got != 20 {
		t.Errorf("budget after overload sample = %d, want 20", got)
	}
}

func TestController_HoldInDeadBand(t *testing.T) {
	c := newTestController()
	c.Observe(Sample{Utilization: 0.7})
	if got := c.Budget(); got != 40 {
		t.Errorf("budget after in-band sample = %d, want 40", got)
	}
}

func TestController_PressureCountsAsLoad(t *testing.T) {
	c := newTestController()
	// Utilization alone is fine, but rate-limited outcomes push the
	// combined load over the high-water mark.
	c.Observe(Sample{Utilization: 0.5, Pressure: 0.4})
	if got := c.Budget(); got != 20 {
		t.Errorf("budget after pressure sample = %d, want 20", got)
	}
}

func TestController_FloorAndCeiling(t *testing.T) {
	c := newTestController()

	for i := 0; i < 10; i++ {
		c.Observe(Sample{Utilization: 1.0})
	}
	if got := c.Budget(); got != 5 {
		t.Errorf("budget after sustained overload = %d, want floor 5", got)
	}

	for i := 0; i < 100; i++ {
		c.Observe(Sample{Utilization: 0.0})
	}
	if got := c.Budget(); got != 100 {
		t.Errorf("budget after sustained idle = %d, want ceiling 100", got)
	}
}

func TestController_BaseClampedToBounds(t *testing.T) {
	c := New(Config{Base: 500, Floor: 5, Ceiling: 100})
	if got := c.Budget(); got != 100 {
		t.Errorf("initial budget = %d, want 100", got)
	}
}
