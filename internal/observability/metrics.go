// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesCompleted  prometheus.Counter
	AgentsDispatched prometheus.Counter
	AgentsSkipped    prometheus.Counter
	CycleDuration    prometheus.Histogram

	// Outcome metrics
	Outcomes        *prometheus.CounterVec
	FailuresByKind  *prometheus.CounterVec
	WorkflowLatency prometheus.Histogram

	// Control metrics
	LimiterRate       prometheus.Gauge
	ConcurrencyBudget prometheus.Gauge
	InFlightAgents    prometheus.Gauge
	BreakerOpen       prometheus.Gauge
	BreakerTrips      prometheus.Counter

	// Shop API metrics
	APICallLatency *prometheus.HistogramVec
	APICallErrors  *prometheus.CounterVec
	RateLimitHits  prometheus.Counter

	// Checkpoint metrics
	CheckpointsSaved   prometheus.Counter
	CheckpointDuration prometheus.Histogram

	// Health metrics
	SimulatedTimestamp prometheus.Gauge
	RunState           *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cartstorm"
	}

	return &Metrics{
		// Cycle metrics
		CyclesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "completed_total",
			Help:      "Total number of simulation cycles completed",
		}),
		AgentsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "agents_dispatched_total",
			Help:      "Total number of agent workflows dispatched",
		}),
		AgentsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "agents_skipped_total",
			Help:      "Total number of agents that chose not to shop",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one simulation cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		// Outcome metrics
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "outcomes_total",
			Help:      "Total number of agent outcomes by terminal state",
		}, []string{"terminal"}),
		FailuresByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "failures_total",
			Help:      "Total number of failed workflows by error kind",
		}, []string{"kind"}),
		WorkflowLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "workflow_latency_seconds",
			Help:      "End-to-end agent workflow latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Control metrics
		LimiterRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "limiter_rate",
			Help:      "Current token bucket refill rate in tokens per second",
		}),
		ConcurrencyBudget: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "concurrency_budget",
			Help:      "Current adaptive concurrency budget",
		}),
		InFlightAgents: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "in_flight_agents",
			Help:      "Number of agent workflows currently running",
		}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "breaker_open",
			Help:      "1 when the circuit breaker is open, 0 when closed",
		}),
		BreakerTrips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		}),

		// Shop API metrics
		APICallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shopapi",
			Name:      "call_latency_seconds",
			Help:      "Shop API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		APICallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shopapi",
			Name:      "call_errors_total",
			Help:      "Total number of shop API call errors by operation and kind",
		}, []string{"op", "kind"}),
		RateLimitHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shopapi",
			Name:      "rate_limit_hits_total",
			Help:      "Total number of 429 responses from the shop API",
		}),

		// Checkpoint metrics
		CheckpointsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "saved_total",
			Help:      "Total number of checkpoints saved",
		}),
		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "save_duration_seconds",
			Help:      "Checkpoint save duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Health metrics
		SimulatedTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "simulated_timestamp",
			Help:      "Current simulated time as a Unix timestamp",
		}),
		RunState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "run_state",
			Help:      "1 for the current orchestrator state, 0 otherwise",
		}, []string{"state"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOutcome increments the outcome counter for a terminal state.
// Nil-safe so components can run without metrics in tests.
func (m *Metrics) RecordOutcome(terminal string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(terminal).Inc()
}

// RecordFailure increments the failure counter for an error kind.
func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.FailuresByKind.WithLabelValues(kind).Inc()
}

// RecordCycle records a completed cycle and its wall-clock duration.
func (m *Metrics) RecordCycle(dispatched, skipped int, seconds float64) {
	if m == nil {
		return
	}
	m.CyclesCompleted.Inc()
	m.AgentsDispatched.Add(float64(dispatched))
	m.AgentsSkipped.Add(float64(skipped))
	m.CycleDuration.Observe(seconds)
}

// UpdateControls updates the limiter rate and concurrency budget gauges.
func (m *Metrics) UpdateControls(rate float64, budget int) {
	if m == nil {
		return
	}
	m.LimiterRate.Set(rate)
	m.ConcurrencyBudget.Set(float64(budget))
}

// RecordBreakerTrip marks the breaker open and counts the trip.
func (m *Metrics) RecordBreakerTrip() {
	if m == nil {
		return
	}
	m.BreakerTrips.Inc()
	m.BreakerOpen.Set(1)
}

// RecordBreakerReset marks the breaker closed.
func (m *Metrics) RecordBreakerReset() {
	if m == nil {
		return
	}
	m.BreakerOpen.Set(0)
}

// RecordCheckpoint records one checkpoint save.
func (m *Metrics) RecordCheckpoint(seconds float64) {
	if m == nil {
		return
	}
	m.CheckpointsSaved.Inc()
	m.CheckpointDuration.Observe(seconds)
}

// SetRunState sets the run_state gauge so exactly one state is 1.
func (m *Metrics) SetRunState(state string) {
	if m == nil {
		return
	}
	for _, s := range []string{"initializing", "running", "paused", "draining", "stopped"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.RunState.WithLabelValues(s).Set(v)
	}
}
