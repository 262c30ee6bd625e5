package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics is the process-wide registry for engine, cache, ledger and
// HTTP telemetry.
type EngineMetrics struct {
	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	ledgerSubmits   *prometheus.CounterVec
	ledgerLatency   *prometheus.HistogramVec
	inconsistencies *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	cacheErrors     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	throttles       *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = newEngineMetrics()
		engineRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return engineRegistry
}

func newEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Engine mutations segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stakegov",
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine mutations including ledger submission.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ledgerSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Ledger transaction submissions segmented by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stakegov",
			Subsystem: "ledger",
			Name:      "submit_duration_seconds",
			Help:      "Latency distribution for ledger submissions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		inconsistencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Name:      "reconciliation_required_total",
			Help:      "Ledger transactions accepted without the matching local write.",
		}, []string{"op"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache reads served from a fresh entry.",
		}, []string{"family"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache reads that recomputed from persisted state.",
		}, []string{"family"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache operations that failed and were degraded.",
		}, []string{"op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route, method and status code.",
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stakegov",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakegov",
			Subsystem: "http",
			Name:      "throttles_total",
			Help:      "Count of requests rejected due to throttling policies.",
		}, []string{"reason"}),
	}
}

// MustRegister registers every collector with reg.
func (m *EngineMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.operations,
		m.operationTime,
		m.ledgerSubmits,
		m.ledgerLatency,
		m.inconsistencies,
		m.cacheHits,
		m.cacheMisses,
		m.cacheErrors,
		m.requests,
		m.requestLatency,
		m.throttles,
	)
}

func label(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return v
}

// ObserveOperation records an engine mutation.
func (m *EngineMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	op = label(op, "unknown")
	m.operations.WithLabelValues(op, label(outcome, "unknown")).Inc()
	m.operationTime.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveLedgerSubmit records a ledger submission.
func (m *EngineMetrics) ObserveLedgerSubmit(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	kind = label(kind, "unknown")
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	m.ledgerSubmits.WithLabelValues(kind, outcome).Inc()
	m.ledgerLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// RecordInconsistency counts a ledger/local divergence.
func (m *EngineMetrics) RecordInconsistency(op string) {
	if m == nil {
		return
	}
	m.inconsistencies.WithLabelValues(label(op, "unknown")).Inc()
}

func (m *EngineMetrics) RecordCacheHit(family string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(label(family, "unknown")).Inc()
}

func (m *EngineMetrics) RecordCacheMiss(family string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(label(family, "unknown")).Inc()
}

func (m *EngineMetrics) RecordCacheError(op string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(label(op, "unknown")).Inc()
}

// ObserveRequest records the outcome of an HTTP request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *EngineMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = label(route, "unknown")
	method = label(method, "unknown")
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *EngineMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason, "unspecified")).Inc()
}
