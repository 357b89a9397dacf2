package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// This implementation provides observability for adaptive rate limiting with:
// - Wait duration histograms per source
// - Rate adjustment counters by direction (increase, decrease, throttle)
// - Current rate gauges per source
// - Upstream throttle event counters
//
// All metrics use a custom registry for better testability and isolation.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// waitDuration tracks time spent blocked waiting for a permit.
	// Labels:
	//   - source: Upstream source identifier
	waitDuration *prometheus.HistogramVec

	// adjustmentsTotal tracks rate changes by direction.
	// Labels:
	//   - source: Upstream source identifier
	//   - direction: "increase", "decrease", or "throttle"
	adjustmentsTotal *prometheus.CounterVec

	// currentRate tracks the sustained request rate per source.
	// Labels:
	//   - source: Upstream source identifier
	currentRate *prometheus.GaugeVec

	// throttleEventsTotal tracks explicit throttle responses per source.
	// Labels:
	//   - source: Upstream source identifier
	throttleEventsTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with a custom registry.
//
// Using a custom registry (instead of the global prometheus.DefaultRegisterer) provides:
// - Better testability (isolated metrics per test)
// - No metric conflicts when running multiple instances
// - Explicit metric lifecycle management
//
// The registry can be passed to promhttp.HandlerFor() to expose metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	waitDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbound_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for a rate limit permit",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	adjustmentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_rate_limit_adjustments_total",
			Help: "Total rate adjustments by source and direction",
		},
		[]string{"source", "direction"},
	)

	currentRate := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbound_rate_limit_current_rate",
			Help: "Current sustained request rate per source, in requests per second",
		},
		[]string{"source"},
	)

	throttleEventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_rate_limit_throttle_events_total",
			Help: "Total explicit throttle responses received per source",
		},
		[]string{"source"},
	)

	// Register all metrics with the custom registry
	registry.MustRegister(
		waitDuration,
		adjustmentsTotal,
		currentRate,
		throttleEventsTotal,
	)

	return &PrometheusMetrics{
		registry:            registry,
		waitDuration:        waitDuration,
		adjustmentsTotal:    adjustmentsTotal,
		currentRate:         currentRate,
		throttleEventsTotal: throttleEventsTotal,
	}
}

// Registry returns the Prometheus registry containing all rate limit metrics.
//
// This can be used with promhttp.HandlerFor() to expose metrics:
//
//	metrics := NewPrometheusMetrics()
//	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordWait records a completed wait for a permit.
func (m *PrometheusMetrics) RecordWait(source string, duration time.Duration) {
	m.waitDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAdjustment records a rate change by direction.
func (m *PrometheusMetrics) RecordAdjustment(source, direction string) {
	m.adjustmentsTotal.WithLabelValues(source, direction).Inc()
}

// SetRate records the current request rate for a source.
func (m *PrometheusMetrics) SetRate(source string, ratePerSecond float64) {
	m.currentRate.WithLabelValues(source).Set(ratePerSecond)
}

// RecordThrottleEvent records an explicit throttle response from the upstream.
func (m *PrometheusMetrics) RecordThrottleEvent(source string) {
	m.throttleEventsTotal.WithLabelValues(source).Inc()
}
