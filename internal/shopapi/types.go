package shopapi

import "context"

// Session is a downstream shopping session bound to one agent.
type Session struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
}

// Product is one catalog entry returned by Browse.
type Product struct {
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
}

// BrowseResult is one page of catalog products.
type BrowseResult struct {
	Products []Product `json:"products"`
	HasMore  bool      `json:"has_more"`
}

// Coupon is an offer eligible for the session's cart.
type Coupon struct {
	Code        string  `json:"code"`
	DiscountPct float64 `json:"discount_pct"`
}

// CheckoutResult is the committed order.
type CheckoutResult struct {
	OrderID    string `json:"order_id"`
	TotalCents int64  `json:"total_cents"`
}

// Client is the downstream shopping API surface the simulation drives.
// Implementations classify every failure with an ErrorKind via APIError.
type Client interface {
	// CreateSession opens a shopping session for an agent. runID tags
	// the session so crash-orphaned sessions can be swept later.
	CreateSession(ctx context.Context, agentID, runID string) (*Session, error)

	// Browse fetches one catalog page for the session.
	Browse(ctx context.Context, sessionID string, page int) (*BrowseResult, error)

	// AddToCart puts qty units of a SKU into the session cart.
	AddToCart(ctx context.Context, sessionID, sku string, qty int) error

	// ListEligibleCoupons returns offers applicable to the cart.
	ListEligibleCoupons(ctx context.Context, sessionID string) ([]Coupon, error)

	// Checkout commits the cart, optionally applying a coupon code.
	Checkout(ctx context.Context, sessionID, couponCode string) (*CheckoutResult, error)

	// AbandonSession clears the session's cart and coupon selection.
	// Used both for deliberate abandons and compensating cleanup.
	AbandonSession(ctx context.Context, sessionID string) error
}
