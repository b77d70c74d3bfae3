package domain

import "time"

// TerminalState is the state an agent workflow ended a cycle in.
type TerminalState string

// Terminal states.
const (
	TerminalSkipped           TerminalState = "SKIPPED"
	TerminalCheckoutComplete  TerminalState = "CHECKOUT_COMPLETE"
	TerminalCheckoutAbandoned TerminalState = "CHECKOUT_ABANDONED"
	TerminalCheckoutFailed    TerminalState = "CHECKOUT_FAILED"
)

// ErrorKind classifies a downstream failure for stats and breaker accounting.
type ErrorKind string

// Error kinds.
const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindRateLimited ErrorKind = "RATE_LIMITED" // 429-class, retries exhausted
	ErrorKindTimeout     ErrorKind = "TIMEOUT"      // deadline or transport timeout
	ErrorKindTransient   ErrorKind = "TRANSIENT"    // 5xx / connection errors, retries exhausted
	ErrorKindRejected    ErrorKind = "REJECTED"     // non-retryable 4xx-class rejection
	ErrorKindInternal    ErrorKind = "INTERNAL"     // bug or unexpected local failure
)

// AgentOutcome is the result of one agent workflow execution.
// It carries no cross-cycle state; that lives in AgentRuntimeState.
type AgentOutcome struct {
	AgentID   string
	Terminal  TerminalState
	Latency   time.Duration
	CallCount int       // downstream calls issued, including retries
	ErrKind   ErrorKind // set only for CheckoutFailed
}

// Failed reports whether the outcome counts toward breaker accounting.
func (o *AgentOutcome) Failed() bool {
	return o.Terminal == TerminalCheckoutFailed
}
