package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry       *prometheus.Registry
	movements      *prometheus.CounterVec
	reversals      *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	persistFailure *prometheus.CounterVec
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	storeCalls     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_movements_total",
			Help: "Committed stock movements by kind.",
		}, []string{"kind"}),
		reversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_reversals_total",
			Help: "Committed transaction reversals by original kind.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_rejections_total",
			Help: "Ledger operations refused before any write.",
		}, []string{"operation", "reason"}),
		persistFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_persist_failures_total",
			Help: "Failed dataset writes by dataset.",
		}, []string{"dataset"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		storeCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_store_call_duration_seconds",
			Help:    "Dataset store calls by dataset, operation and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"dataset", "op", "outcome"}),
	}

	m.registry.MustRegister(m.movements, m.reversals, m.rejections, m.persistFailure, m.requests, m.latency, m.storeCalls)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MovementApplied(kind string) {
	m.movements.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReversalApplied(kind string) {
	m.reversals.WithLabelValues(kind).Inc()
}

func (m *Metrics) OperationRejected(operation, reason string) {
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) PersistFailed(dataset string) {
	m.persistFailure.WithLabelValues(dataset).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	m.requests.WithLabelValues(method, route, status).Inc()
	m.latency.WithLabelValues(method, route).Observe(seconds)
}

// ObserveStoreCall records one dataset load or save.
func (m *Metrics) ObserveStoreCall(dataset, op, outcome string, seconds float64) {
	m.storeCalls.WithLabelValues(dataset, op, outcome).Observe(seconds)
}
