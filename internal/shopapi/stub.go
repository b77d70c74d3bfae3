package shopapi

import (
	"context"
	"fmt"
	"sync"

	"cartstorm/internal/domain"
)

// Stub implements Client in memory for tests and dry runs.
// Failures are injected per operation via FailOps; each injected
// failure is consumed once unless Sticky is set.
type Stub struct {
	mu sync.Mutex

	// Catalog served by Browse. Defaults to a small fixture.
	Catalog []Product

	// FailOps maps an operation name ("checkout", "browse", ...) to a
	// queue of kinds to fail with. Empty queue means success.
	FailOps map[string][]domain.ErrorKind

	// Sticky makes the head of each FailOps queue permanent.
	Sticky bool

	sessionSeq int
	orderSeq   int

	// Call counters by operation, for assertions.
	Calls map[string]int

	// AbandonedSessions records every AbandonSession target.
	AbandonedSessions []string
}

// NewStub creates a stub with a default three-product catalog.
func NewStub() *Stub {
	return &Stub{
		Catalog: []Product{
			{SKU: "SKU-001", Name: "oat milk", PriceCents: 399},
			{SKU: "SKU-002", Name: "espresso beans", PriceCents: 1250},
			{SKU: "SKU-003", Name: "chocolate bar", PriceCents: 250},
		},
		FailOps: make(map[string][]domain.ErrorKind),
		Calls:   make(map[string]int),
	}
}

// Compile-time interface check.
var _ Client = (*Stub)(nil)

// FailNext queues n failures of the given kind for an operation.
func (s *Stub) FailNext(op string, kind domain.ErrorKind, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.FailOps[op] = append(s.FailOps[op], kind)
	}
}

// CallCount returns how many times an operation was invoked.
func (s *Stub) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls[op]
}

// Abandoned returns a copy of the abandoned session IDs.
func (s *Stub) Abandoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.AbandonedSessions))
	copy(out, s.AbandonedSessions)
	return out
}

// check counts the call and pops an injected failure if one is queued.
func (s *Stub) check(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls[op]++
	queue := s.FailOps[op]
	if len(queue) == 0 {
		return nil
	}
	kind := queue[0]
	if !s.Sticky {
		s.FailOps[op] = queue[1:]
	}
	status := statusFor(kind)
	return &APIError{Op: op, Status: status, Kind: kind, Msg: "injected"}
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindRateLimited:
		return 429
	case domain.ErrorKindTimeout:
		return 408
	case domain.ErrorKindTransient:
		return 503
	case domain.ErrorKindRejected:
		return 422
	}
	return 0
}

// CreateSession opens a stub session.
func (s *Stub) CreateSession(_ context.Context, agentID, _ string) (*Session, error) {
	if err := s.check("create-session"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionSeq++
	return &Session{SessionID: fmt.Sprintf("sess-%06d", s.sessionSeq), AgentID: agentID}, nil
}

// Browse serves one page of the stub catalog.
func (s *Stub) Browse(_ context.Context, _ string, page int) (*BrowseResult, error) {
	if err := s.check("browse"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > 0 {
		return &BrowseResult{}, nil
	}
	products := make([]Product, len(s.Catalog))
	copy(products, s.Catalog)
	return &BrowseResult{Products: products}, nil
}

// AddToCart records the call.
func (s *Stub) AddToCart(_ context.Context, _, _ string, _ int) error {
	return s.check("add-to-cart")
}

// ListEligibleCoupons returns one fixed coupon.
func (s *Stub) ListEligibleCoupons(_ context.Context, _ string) ([]Coupon, error) {
	if err := s.check("list-eligible-coupons"); err != nil {
		return nil, err
	}
	return []Coupon{{Code: "WELCOME10", DiscountPct: 10}}, nil
}

// Checkout commits the stub cart.
func (s *Stub) Checkout(_ context.Context, _, _ string) (*CheckoutResult, error) {
	if err := s.check("checkout"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSeq++
	return &CheckoutResult{OrderID: fmt.Sprintf("order-%06d", s.orderSeq), TotalCents: 1899}, nil
}

// AbandonSession records the abandoned session.
func (s *Stub) AbandonSession(_ context.Context, sessionID string) error {
	if err := s.check("abandon-session"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AbandonedSessions = append(s.AbandonedSessions, sessionID)
	return nil
}
