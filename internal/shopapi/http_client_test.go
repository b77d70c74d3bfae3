package shopapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cartstorm/internal/domain"
)

func TestHTTPClient_CreateSessionOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"sess-1","agent_id":"agent-1"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	sess, err := c.CreateSession(context.Background(), "agent-1", "run-1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if sess.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", sess.SessionID)
	}
}

func TestHTTPClient_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   domain.ErrorKind
	}{
		{http.StatusTooManyRequests, domain.ErrorKindRateLimited},
		{http.StatusRequestTimeout, domain.ErrorKindTimeout},
		{http.StatusInternalServerError, domain.ErrorKindTransient},
		{http.StatusServiceUnavailable, domain.ErrorKindTransient},
		{http.StatusBadRequest, domain.ErrorKindRejected},
		{http.StatusUnprocessableEntity, domain.ErrorKindRejected},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := NewHTTPClient(srv.URL)
		_, err := c.Browse(context.Background(), "sess-1", 0)
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: error %v is not an APIError", tc.status, err)
		}
		if apiErr.Kind != tc.kind {
			t.Errorf("status %d: kind = %s, want %s", tc.status, apiErr.Kind, tc.kind)
		}
		if apiErr.Status != tc.status {
			t.Errorf("status %d: recorded status = %d", tc.status, apiErr.Status)
		}
	}
}

func TestHTTPClient_TimeoutClassifiedAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, WithTimeout(20*time.Millisecond))
	_, err := c.Browse(context.Background(), "sess-1", 0)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := KindOf(err); got != domain.ErrorKindTimeout {
		t.Errorf("KindOf(timeout) = %s, want %s", got, domain.ErrorKindTimeout)
	}
}

func TestHTTPClient_ConnectionRefusedIsTransient(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL)
	err := c.AddToCart(context.Background(), "sess-1", "SKU-001", 1)
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if got := KindOf(err); got != domain.ErrorKindTransient {
		t.Errorf("KindOf(conn refused) = %s, want %s", got, domain.ErrorKindTransient)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != domain.ErrorKindInternal {
		t.Errorf("KindOf(plain) = %s, want %s", got, domain.ErrorKindInternal)
	}
	if got := KindOf(nil); got != domain.ErrorKindNone {
		t.Errorf("KindOf(nil) = %s, want none", got)
	}
}

func TestAPIError_Retryable(t *testing.T) {
	cases := []struct {
		kind      domain.ErrorKind
		retryable bool
	}{
		{domain.ErrorKindRateLimited, true},
		{domain.ErrorKindTimeout, true},
		{domain.ErrorKindTransient, true},
		{domain.ErrorKindRejected, false},
		{domain.ErrorKindInternal, false},
	}
	for _, tc := range cases {
		e := &APIError{Kind: tc.kind}
		if e.Retryable() != tc.retryable {
			t.Errorf("Retryable(%s) = %v, want %v", tc.kind, e.Retryable(), tc.retryable)
		}
	}
}
