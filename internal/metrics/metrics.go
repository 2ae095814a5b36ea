// Package metrics exposes Prometheus collectors for captures, location
// strategies, provider lookups, store operations and the HTTP API.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
// That keeps instrumentation out of the way of library callers and tests
// that do not care about it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkforensics"

// Outcome labels shared by strategy, provider and store metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeUnsupported = "unsupported"
	OutcomeSkipped     = "skipped"
	OutcomeCacheHit    = "cache_hit"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	capturesTotal    *prometheus.CounterVec
	captureDuration  prometheus.Histogram
	trustScore       prometheus.Histogram
	strategyResults  *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	storeOperations  *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates a registry with process and Go runtime collectors plus the
// module's own collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		capturesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "total",
				Help:      "Total number of captures, by public IP resolution result",
			},
			[]string{"ip"},
		),
		captureDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "duration_seconds",
				Help:      "Time from capture start to assembled record",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
		),
		trustScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "capture",
				Name:      "trust_score",
				Help:      "Distribution of computed trust scores",
				Buckets:   prometheus.LinearBuckets(10, 10, 10),
			},
		),
		strategyResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "location",
				Name:      "strategy_results_total",
				Help:      "Location strategy outcomes",
			},
			[]string{"method", "outcome"},
		),
		providerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "External provider lookups, by chain, provider and outcome",
			},
			[]string{"chain", "provider", "outcome"},
		),
		storeOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Forensic store operations, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of session trackers currently open",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCapture records one assembled record.
func (m *Metrics) ObserveCapture(ipResolved bool, score int, took time.Duration) {
	if m == nil {
		return
	}
	label := "resolved"
	if !ipResolved {
		label = "unknown"
	}
	m.capturesTotal.WithLabelValues(label).Inc()
	m.captureDuration.Observe(took.Seconds())
	m.trustScore.Observe(float64(score))
}

// ObserveStrategy records the outcome of one location strategy.
func (m *Metrics) ObserveStrategy(method, outcome string) {
	if m == nil {
		return
	}
	m.strategyResults.WithLabelValues(method, outcome).Inc()
}

// ObserveProvider records the outcome of one provider lookup.
func (m *Metrics) ObserveProvider(chain, provider, outcome string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(chain, provider, outcome).Inc()
}

// ObserveStore records the outcome of one store operation.
func (m *Metrics) ObserveStore(operation, outcome string) {
	if m == nil {
		return
	}
	m.storeOperations.WithLabelValues(operation, outcome).Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
