package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the host
type Metrics struct {
	registry *prometheus.Registry

	// Invocation metrics
	InvocationsTotal      *prometheus.CounterVec
	InvocationDuration    *prometheus.HistogramVec
	InvocationErrorsTotal *prometheus.CounterVec

	// Policy metrics
	PolicyVerdictsTotal  *prometheus.CounterVec
	ApprovalsTotal       *prometheus.CounterVec
	ApprovalsPending     prometheus.Gauge

	// Session metrics
	SessionState      *prometheus.GaugeVec
	ReconnectsTotal   *prometheus.CounterVec
	DiscoveriesTotal  *prometheus.CounterVec

	// Engine metrics
	EngineCallsTotal   *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec
	EngineRetriesTotal prometheus.Counter

	// Interaction metrics
	InteractionsTotal  *prometheus.CounterVec
	PlanningIterations prometheus.Histogram
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocations_total",
				Help: "Total number of tool invocations dispatched",
			},
			[]string{"provider", "tool", "status"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_invocation_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "tool"},
		),
		InvocationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_invocation_errors_total",
				Help: "Total number of failed tool invocations",
			},
			[]string{"provider", "kind"},
		),

		PolicyVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "policy_verdicts_total",
				Help: "Total number of policy verdicts by outcome",
			},
			[]string{"verdict"},
		),
		ApprovalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approvals_total",
				Help: "Total number of resolved approval decisions",
			},
			[]string{"decision"},
		),
		ApprovalsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "approvals_pending",
				Help: "Number of approval requests awaiting a decision",
			},
		),

		SessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_session_state",
				Help: "Current session state per provider (0=closed 1=connecting 2=ready 3=degraded)",
			},
			[]string{"provider"},
		),
		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_reconnects_total",
				Help: "Total number of reconnect attempts per provider",
			},
			[]string{"provider", "status"},
		),
		DiscoveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_discoveries_total",
				Help: "Total number of capability discovery cycles",
			},
			[]string{"provider", "status"},
		),

		EngineCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_calls_total",
				Help: "Total number of reasoning engine calls",
			},
			[]string{"engine", "status"},
		),
		EngineCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_call_duration_seconds",
				Help:    "Duration of reasoning engine calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		EngineRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_retries_total",
				Help: "Total number of retried reasoning engine calls",
			},
		),

		InteractionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interactions_total",
				Help: "Total number of interactions by terminal state",
			},
			[]string{"state"},
		),
		PlanningIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "planning_iterations_per_interaction",
				Help:    "Planning iterations consumed per interaction",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
	}

	registry.MustRegister(
		m.InvocationsTotal,
		m.InvocationDuration,
		m.InvocationErrorsTotal,
		m.PolicyVerdictsTotal,
		m.ApprovalsTotal,
		m.ApprovalsPending,
		m.SessionState,
		m.ReconnectsTotal,
		m.DiscoveriesTotal,
		m.EngineCallsTotal,
		m.EngineCallDuration,
		m.EngineRetriesTotal,
		m.InteractionsTotal,
		m.PlanningIterations,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

var (
	defaultOnce sync.Once
	defaultInst *Metrics
)

// Default returns the process-wide metrics instance
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInst = NewMetrics()
	})
	return defaultInst
}
