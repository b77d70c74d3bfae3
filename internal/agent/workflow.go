// Package agent drives one synthetic shopper through the downstream
// shopping workflow: Idle → Deciding → (Skipped | Browsing →
// CartBuilding → CouponEvaluation → terminal checkout state).
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cartstorm/internal/domain"
	"cartstorm/internal/ratelimit"
	"cartstorm/internal/shopapi"
)

// Default retry tuning for downstream calls.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// Workflow executes the shopping state machine for agents. One
// Workflow is shared by all agents in a run; per-invocation state
// (session, retry counters) stays on the stack.
type Workflow struct {
	api     shopapi.Client
	limiter *ratelimit.Limiter
	policy  Policy
	runID   string

	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64

	logger  *log.Logger
	nowFn   func() time.Time
	sleepFn func(context.Context, time.Duration) error
}

// Options for creating a Workflow.
type Options struct {
	API     shopapi.Client
	Limiter *ratelimit.Limiter
	Policy  Policy
	RunID   string

	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration

	Logger *log.Logger
}

// New creates a Workflow.
func New(opts Options) *Workflow {
	w := &Workflow{
		api:         opts.API,
		limiter:     opts.Limiter,
		policy:      opts.Policy,
		runID:       opts.RunID,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		maxDelay:    opts.MaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      opts.Logger,
		nowFn:       time.Now,
		sleepFn:     sleepCtx,
	}
	if w.policy == nil {
		w.policy = &SeededPolicy{}
	}
	if w.maxRetries <= 0 {
		w.maxRetries = DefaultMaxRetries
	}
	if w.retryDelay <= 0 {
		w.retryDelay = DefaultRetryDelay
	}
	if w.maxDelay <= 0 {
		w.maxDelay = DefaultMaxDelay
	}
	if w.logger == nil {
		w.logger = log.Default()
	}
	return w
}

// Run executes one agent's cycle and returns its outcome. Failures
// are contained: Run never returns an error, it classifies one.
func (w *Workflow) Run(ctx context.Context, desc *domain.AgentDescriptor, cycleIndex int64, simTime time.Time) *domain.AgentOutcome {
	start := w.nowFn()
	outcome := &domain.AgentOutcome{AgentID: desc.AgentID}
	defer func() {
		outcome.Latency = w.nowFn().Sub(start)
	}()

	// Deciding: one reproducible draw, no I/O.
	if !w.policy.ShouldShop(desc, cycleIndex, simTime) {
		outcome.Terminal = domain.TerminalSkipped
		return outcome
	}

	// Browsing starts with a session.
	var session *shopapi.Session
	err := w.call(ctx, outcome, func(ctx context.Context) error {
		s, err := w.api.CreateSession(ctx, desc.AgentID, w.runID)
		if err == nil {
			session = s
		}
		return err
	})
	if err != nil {
		return w.fail(ctx, outcome, session, err)
	}

	var products []shopapi.Product
	pages := w.policy.BrowsePages(desc, cycleIndex)
	for page := 0; page < pages; page++ {
		var result *shopapi.BrowseResult
		err := w.call(ctx, outcome, func(ctx context.Context) error {
			r, err := w.api.Browse(ctx, session.SessionID, page)
			if err == nil {
				result = r
			}
			return err
		})
		if err != nil {
			return w.fail(ctx, outcome, session, err)
		}
		products = append(products, result.Products...)
		if !result.HasMore {
			break
		}
	}

	// CartBuilding.
	picks := w.policy.PickItems(desc, cycleIndex, products)
	if len(picks) == 0 {
		return w.abandon(ctx, outcome, session)
	}
	var cartTotal int64
	for _, pick := range picks {
		pick := pick
		err := w.call(ctx, outcome, func(ctx context.Context) error {
			return w.api.AddToCart(ctx, session.SessionID, pick.SKU, pick.Qty)
		})
		if err != nil {
			return w.fail(ctx, outcome, session, err)
		}
		cartTotal += pick.PriceCents * int64(pick.Qty)
	}

	// CouponEvaluation.
	var coupons []shopapi.Coupon
	err = w.call(ctx, outcome, func(ctx context.Context) error {
		c, err := w.api.ListEligibleCoupons(ctx, session.SessionID)
		if err == nil {
			coupons = c
		}
		return err
	})
	if err != nil {
		return w.fail(ctx, outcome, session, err)
	}

	if w.policy.ShouldAbandon(desc, cycleIndex, cartTotal) {
		return w.abandon(ctx, outcome, session)
	}

	couponCode := w.policy.PickCoupon(desc, cycleIndex, coupons)
	err = w.call(ctx, outcome, func(ctx context.Context) error {
		_, err := w.api.Checkout(ctx, session.SessionID, couponCode)
		return err
	})
	if err != nil {
		return w.fail(ctx, outcome, session, err)
	}

	outcome.Terminal = domain.TerminalCheckoutComplete
	return outcome
}

// call issues one downstream operation through the limiter with
// bounded exponential-backoff retries. Rate-limited responses also
// feed the limiter's rejection signal; non-retryable errors return
// immediately.
func (w *Workflow) call(ctx context.Context, outcome *domain.AgentOutcome, fn func(context.Context) error) error {
	delay := w.retryDelay
	var lastErr error

	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			if err := w.sleepFn(ctx, delay); err != nil {
				return lastErr
			}
			delay = time.Duration(float64(delay) * w.backoffMult)
			if delay > w.maxDelay {
				delay = w.maxDelay
			}
		}

		if wait := w.limiter.Acquire(1); wait > 0 {
			if err := w.sleepFn(ctx, wait); err != nil {
				return &shopapi.APIError{Op: "limiter-wait", Kind: domain.ErrorKindTimeout, Msg: err.Error()}
			}
		}

		outcome.CallCount++
		err := fn(ctx)
		if err == nil {
			w.limiter.OnAccepted()
			return nil
		}

		var apiErr *shopapi.APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return err
		}
		if apiErr.Kind == domain.ErrorKindRateLimited {
			w.limiter.OnRejected()
		}
		lastErr = err
	}

	return fmt.Errorf("retries exhausted: %w", lastErr)
}

// fail finishes the run in CheckoutFailed after compensating cleanup:
// any partially built cart is cleared so the next cycle starts clean.
// The cleanup is a single best-effort call, not retried.
func (w *Workflow) fail(ctx context.Context, outcome *domain.AgentOutcome, session *shopapi.Session, err error) *domain.AgentOutcome {
	outcome.Terminal = domain.TerminalCheckoutFailed
	outcome.ErrKind = shopapi.KindOf(err)

	if session != nil {
		outcome.CallCount++
		if cleanupErr := w.api.AbandonSession(ctx, session.SessionID); cleanupErr != nil {
			w.logger.Printf("[agent] cleanup of session %s failed: %v", session.SessionID, cleanupErr)
		}
	}
	return outcome
}

// abandon finishes the run in CheckoutAbandoned, clearing the session.
func (w *Workflow) abandon(ctx context.Context, outcome *domain.AgentOutcome, session *shopapi.Session) *domain.AgentOutcome {
	outcome.Terminal = domain.TerminalCheckoutAbandoned
	if session != nil {
		outcome.CallCount++
		if err := w.api.AbandonSession(ctx, session.SessionID); err != nil {
			w.logger.Printf("[agent] abandon of session %s failed: %v", session.SessionID, err)
		}
	}
	return outcome
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
