package shopapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"cartstorm/internal/domain"
)

// APIError is a classified downstream failure.
type APIError struct {
	Op     string // e.g. "checkout"
	Status int    // HTTP status, 0 for transport errors
	Kind   domain.ErrorKind
	Msg    string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d (%s): %s", e.Op, e.Status, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Retryable reports whether the workflow may retry the call.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case domain.ErrorKindRateLimited, domain.ErrorKindTimeout, domain.ErrorKindTransient:
		return true
	}
	return false
}

// KindOf extracts the ErrorKind from any error returned by a Client.
// Unclassified errors map to INTERNAL.
func KindOf(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindNone
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	return domain.ErrorKindInternal
}

// classifyStatus maps an HTTP status to an ErrorKind.
// 429 is called out separately so callers can feed the rate limiter;
// pool-exhausted style 503s are retryable, other 4xx are not.
func classifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case status == http.StatusRequestTimeout:
		return domain.ErrorKindTimeout
	case status >= 500:
		return domain.ErrorKindTransient
	case status >= 400:
		return domain.ErrorKindRejected
	default:
		return domain.ErrorKindInternal
	}
}

// classifyTransport maps a transport-level error to an ErrorKind.
func classifyTransport(err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}
	return domain.ErrorKindTransient
}
