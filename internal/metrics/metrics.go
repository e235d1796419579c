// Package metrics provides Prometheus metrics for the target dispatch
// core, adapted from pkg/observability/prometheus.go's custom-registry
// pattern (avoids the default registry so a process can construct more
// than one Metrics instance, e.g. in tests, without a registration panic).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nvmf_targetd"

// Metrics holds every metric the dispatch core exports.
type Metrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	passthroughTotal *prometheus.CounterVec
	passthroughDur   *prometheus.HistogramVec

	connectTotal   *prometheus.CounterVec
	handoffTotal   *prometheus.CounterVec

	aerSlotsInUseFunc    func() int
	activeSessionsFunc   func() int
}

// New creates a Metrics instance with every metric registered against a
// fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total commands dispatched by queue class and outcome",
			},
			[]string{"queue", "outcome"},
		),

		passthroughTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passthrough_total",
				Help:      "Total passthrough submissions to the backing controller by status",
			},
			[]string{"status"},
		),

		passthroughDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "passthrough_duration_seconds",
				Help:      "Time from passthrough submission to completion",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"queue"},
		),

		connectTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_total",
				Help:      "Total fabric Connect attempts by result",
			},
			[]string{"result"}, // success, invalid_parameters, rate_limited
		),

		handoffTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poller_handoff_total",
				Help:      "Total cross-poller hand-offs for Connect, by result",
			},
			[]string{"result"}, // delivered, dropped
		),
	}

	reg.MustRegister(
		m.dispatchTotal,
		m.passthroughTotal,
		m.passthroughDur,
		m.connectTotal,
		m.handoffTotal,
	)

	return m
}

// Handler returns the HTTP handler for this instance's metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveDispatch records one dispatched command's outcome.
func (m *Metrics) ObserveDispatch(queue, outcome string) {
	m.dispatchTotal.WithLabelValues(queue, outcome).Inc()
}

// ObservePassthrough records one backend passthrough submission and its
// completion latency in seconds.
func (m *Metrics) ObservePassthrough(queue, status string, seconds float64) {
	m.passthroughTotal.WithLabelValues(status).Inc()
	m.passthroughDur.WithLabelValues(queue).Observe(seconds)
}

// ObserveConnect records one fabric Connect attempt's result.
func (m *Metrics) ObserveConnect(result string) {
	m.connectTotal.WithLabelValues(result).Inc()
}

// ObserveHandoff records one cross-poller Connect hand-off's result.
func (m *Metrics) ObserveHandoff(result string) {
	m.handoffTotal.WithLabelValues(result).Inc()
}

// SetAERSlotGauge registers a GaugeFunc deriving the count of currently
// pinned AER slots from fn. Call at most once; a second call is a no-op.
func (m *Metrics) SetAERSlotGauge(fn func() int) {
	if m.aerSlotsInUseFunc != nil {
		return
	}
	m.aerSlotsInUseFunc = fn
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aer_slots_in_use",
			Help:      "Number of sessions with a currently pinned AER request",
		},
		func() float64 { return float64(m.aerSlotsInUseFunc()) },
	))
}

// SetActiveSessionGauge registers a GaugeFunc deriving the count of live
// sessions from fn. Call at most once; a second call is a no-op.
func (m *Metrics) SetActiveSessionGauge(fn func() int) {
	if m.activeSessionsFunc != nil {
		return
	}
	m.activeSessionsFunc = fn
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions currently established",
		},
		func() float64 { return float64(m.activeSessionsFunc()) },
	))
}
