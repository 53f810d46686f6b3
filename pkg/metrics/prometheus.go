// Package metrics exposes Prometheus metrics for the experimentation engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the engine's metrics. A nil *Manager is valid and records
// nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	assignments    *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
	conversions    *prometheus.CounterVec
	significance   prometheus.Counter
	storageErrors  *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a manager on its own registry unless WithRegistry is
// given, so several managers can coexist in tests.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "xgoat",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.assignments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "assignments_total",
		Help:      "Variant assignments written, by experiment and variant.",
	}, []string{"experiment_id", "variant_id"})

	m.gateRejections = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "gate_rejections_total",
		Help:      "Users turned away by the audience gate, by reason.",
	}, []string{"experiment_id", "reason"})

	m.conversions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conversions_total",
		Help:      "Conversion events recorded, by experiment and variant.",
	}, []string{"experiment_id", "variant_id"})

	m.significance = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "significance_computations_total",
		Help:      "Significance tests computed.",
	})

	m.storageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "storage_errors_total",
		Help:      "Storage failures, by operation.",
	}, []string{"operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests handled, by route, method and status.",
	}, []string{"route", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

func (m *Manager) RecordAssignment(experimentID, variantID string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(experimentID, variantID).Inc()
}

func (m *Manager) RecordGateRejection(experimentID, reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(experimentID, reason).Inc()
}

func (m *Manager) RecordConversion(experimentID, variantID string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(experimentID, variantID).Inc()
}

func (m *Manager) RecordSignificance() {
	if m == nil {
		return
	}
	m.significance.Inc()
}

func (m *Manager) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(operation).Inc()
}

func (m *Manager) RecordHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry returns the registry metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
