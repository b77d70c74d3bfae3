package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single downstream call.
const DefaultTimeout = 15 * time.Second

// HTTPClient implements Client against the shopping API's JSON surface.
// It performs exactly one attempt per call; retry and backoff policy
// belongs to the agent workflow, which owns the limiter interplay.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a shopping API client for the given base URL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// CreateSession opens a shopping session for an agent.
func (c *HTTPClient) CreateSession(ctx context.Context, agentID, runID string) (*Session, error) {
	body := map[string]string{"agent_id": agentID, "run_id": runID}
	var out Session
	if err := c.do(ctx, "create-session", http.MethodPost, "/v1/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Browse fetches one catalog page.
func (c *HTTPClient) Browse(ctx context.Context, sessionID string, page int) (*BrowseResult, error) {
	path := fmt.Sprintf("/v1/sessions/%s/browse?page=%d", url.PathEscape(sessionID), page)
	var out BrowseResult
	if err := c.do(ctx, "browse", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddToCart puts qty units of a SKU into the session cart.
func (c *HTTPClient) AddToCart(ctx context.Context, sessionID, sku string, qty int) error {
	path := fmt.Sprintf("/v1/sessions/%s/cart", url.PathEscape(sessionID))
	body := map[string]interface{}{"sku": sku, "qty": qty}
	return c.do(ctx, "add-to-cart", http.MethodPost, path, body, nil)
}

// ListEligibleCoupons returns offers applicable to the cart.
func (c *HTTPClient) ListEligibleCoupons(ctx context.Context, sessionID string) ([]Coupon, error) {
	path := fmt.Sprintf("/v1/sessions/%s/coupons", url.PathEscape(sessionID))
	var out struct {
		Coupons []Coupon `json:"coupons"`
	}
	if err := c.do(ctx, "list-eligible-coupons", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Coupons, nil
}

// Checkout commits the cart.
func (c *HTTPClient) Checkout(ctx context.Context, sessionID, couponCode string) (*CheckoutResult, error) {
	path := fmt.Sprintf("/v1/sessions/%s/checkout", url.PathEscape(sessionID))
	body := map[string]string{}
	if couponCode != "" {
		body["coupon_code"] = couponCode
	}
	var out CheckoutResult
	if err := c.do(ctx, "checkout", http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AbandonSession clears the session's cart and coupon selection.
func (c *HTTPClient) AbandonSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/v1/sessions/%s", url.PathEscape(sessionID))
	return c.do(ctx, "abandon-session", http.MethodDelete, path, nil, nil)
}

// do issues a single JSON request and classifies the response.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &APIError{Op: op, Kind: classifyTransport(err), Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, Kind: classifyTransport(err), Msg: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Op:     op,
			Status: resp.StatusCode,
			Kind:   classifyStatus(resp.StatusCode),
			Msg:    truncate(string(respBody), 200),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%s: unmarshal response: %w", op, err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
