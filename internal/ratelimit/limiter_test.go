package ratelimit

import (
	"math"
	"sync"
	"testing"
	"time"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	current := start
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(d)
	}
	return now, advance
}

func TestLimiter_AcquireWithinCapacity(t *testing.T) {
	now, _ := testClock(time.Unix(0, 0))
	l := New(10, 5, WithNowFunc(now))

	for i := 0; i < 10; i++ {
		if wait := l.Acquire(1); wait != 0 {
			t.Fatalf("acquire %d: wait = %v, want 0", i, wait)
		}
	}

	// Bucket is empty; next acquire must report a wait of 1/rate.
	wait := l.Acquire(1)
	want := 200 * time.Millisecond
	if wait != want {
		t.Errorf("acquire on empty bucket: wait = %v, want %v", wait, want)
	}
}

func TestLimiter_TokensInvariant(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	l := New(50, 50, WithNowFunc(now))

	// Arbitrary interleaving of acquires, refills and rate changes.
	steps := []func(){
		func() { l.Acquire(30) },
		func() { advance(100 * time.Millisecond) },
		func() { l.Acquire(40) },
		func() { l.OnRejected() },
		func() { l.Acquire(5) },
		func() { advance(10 * time.Second) },
		func() { l.OnAccepted() },
		func() { l.Acquire(50) },
		func() { l.Acquire(1) },
		func() { advance(time.Hour) },
	}

	for i, step := range steps {
		step()
		snap := l.Snapshot()
		if snap.Tokens < 0 || snap.Tokens > snap.Capacity {
			t.Fatalf("step %d: tokens %f outside [0, %f]", i, snap.Tokens, snap.Capacity)
		}
	}
}

// One rejection halves refill to 25/s; ten accepts grow it back toward,
// never above, 50/s.
func TestLimiter_AdaptiveRate(t *testing.T) {
	now, _ := testClock(time.Unix(0, 0))
	l := New(50, 50, WithNowFunc(now))

	l.OnRejected()
	if got := l.Rate(); got != 25 {
		t.Fatalf("rate after rejection = %f, want 25", got)
	}

	prev := 25.0
	for i := 0; i < 10; i++ {
		l.OnAccepted()
		got := l.Rate()
		if got < prev {
			t.Fatalf("accept %d: rate decreased from %f to %f", i, prev, got)
		}
		if got > 50 {
			t.Fatalf("accept %d: rate %f above ceiling 50", i, got)
		}
		prev = got
	}
	if prev != 50 {
		t.Errorf("rate after 10 accepts = %f, want ceiling 50", prev)
	}
}

func TestLimiter_RateFloor(t *testing.T) {
	now, _ := testClock(time.Unix(0, 0))
	l := New(50, 50, WithNowFunc(now), WithRateBounds(10, 50))

	for i := 0; i < 20; i++ {
		l.OnRejected()
	}
	if got := l.Rate(); got != 10 {
		t.Errorf("rate after repeated rejections = %f, want floor 10", got)
	}
}

func TestLimiter_RefillCappedAtCapacity(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	l := New(10, 100, WithNowFunc(now))

	l.Acquire(10)
	advance(time.Hour)

	snap := l.Snapshot()
	if snap.Tokens != 10 {
		t.Errorf("tokens after long idle = %f, want capacity 10", snap.Tokens)
	}
}

func TestLimiter_ReservedDebtDelaysRefill(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	l := New(10, 10, WithNowFunc(now))

	l.Acquire(10)
	wait := l.Acquire(10) // 10-token deficit at 10/s
	if wait != time.Second {
		t.Fatalf("wait = %v, want 1s", wait)
	}

	// Half the reserved wait elapsed: still no credit available.
	advance(500 * time.Millisecond)
	if got := l.ProjectedWait(1); got == 0 {
		t.Error("expected nonzero wait while reserved debt outstanding")
	}

	// After the debt window plus 1s, a full 10 tokens have accrued.
	advance(1500 * time.Millisecond)
	snap := l.Snapshot()
	if math.Abs(snap.Tokens-10) > 1e-9 {
		t.Errorf("tokens = %f, want 10", snap.Tokens)
	}
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	l := New(1000, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Acquire(1)
				l.OnAccepted()
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	if snap.Tokens < 0 || snap.Tokens > snap.Capacity {
		t.Errorf("tokens %f outside [0, %f] after concurrent use", snap.Tokens, snap.Capacity)
	}
}
