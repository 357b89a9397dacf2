// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch metrics track outbound fetch operations per source
var (
	// FetchRequestsTotal counts fetch operations by source and result
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_requests_total",
			Help: "Total number of fetch operations",
		},
		[]string{"source", "result"}, // result: success, error, circuit_open, stale
	)

	// FetchDuration measures end-to-end fetch duration per source
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "End-to-end fetch duration per source",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"source"},
	)

	// RecordsFetchedTotal counts parsed records fetched from each source
	RecordsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_fetched_total",
			Help: "Total number of records fetched from sources",
		},
		[]string{"source"},
	)
)

// Cache metrics track the fetch cache
var (
	// CacheRequestsTotal counts cache lookups by source and outcome
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_cache_requests_total",
			Help: "Total number of fetch cache lookups",
		},
		[]string{"source", "outcome"}, // outcome: hit, miss, stale
	)

	// CacheEntries tracks the number of live cache entries per source
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetch_cache_entries",
			Help: "Current number of live cache entries",
		},
		[]string{"source"},
	)
)

// Resilience metrics track circuit breakers and retries
var (
	// BreakerState tracks the circuit breaker state per source
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fetch_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=open, 2=half-open)",
		},
		[]string{"source"},
	)

	// BreakerTransitionsTotal counts breaker state transitions
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"source", "to"},
	)
)

// Pool metrics track the outbound connection pool
var (
	// PoolConnections tracks the total number of pooled connections
	PoolConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetch_pool_connections",
			Help: "Current number of pooled outbound connections",
		},
	)

	// PoolTimeoutsTotal counts acquisitions that timed out waiting for a connection
	PoolTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_pool_timeouts_total",
			Help: "Total connection pool acquire timeouts",
		},
	)
)

// RecordFetch records a completed fetch operation with its result and duration.
func RecordFetch(sourceID, result string, duration time.Duration) {
	FetchRequestsTotal.WithLabelValues(sourceID, result).Inc()
	FetchDuration.WithLabelValues(sourceID).Observe(duration.Seconds())
}

// RecordRecordsFetched adds to the per-source record counter.
func RecordRecordsFetched(sourceID string, count int) {
	RecordsFetchedTotal.WithLabelValues(sourceID).Add(float64(count))
}

// RecordCacheOutcome records a cache lookup outcome (hit, miss, stale).
func RecordCacheOutcome(sourceID, outcome string) {
	CacheRequestsTotal.WithLabelValues(sourceID, outcome).Inc()
}

// SetBreakerState records the numeric breaker state for a source.
func SetBreakerState(sourceID string, state int) {
	BreakerState.WithLabelValues(sourceID).Set(float64(state))
}

// RecordBreakerTransition counts a breaker transition into a state.
func RecordBreakerTransition(sourceID, to string) {
	BreakerTransitionsTotal.WithLabelValues(sourceID, to).Inc()
}
