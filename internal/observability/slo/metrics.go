// Package slo defines the service level objectives for outbound fetching and
// exposes gauges tracking compliance with them.
package slo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the fetch layer. The latency target matches the threshold
// beyond which a source is considered degraded.
const (
	// SuccessRateSLO defines the minimum acceptable fetch success ratio.
	SuccessRateSLO = 0.95

	// LatencyP95SLO defines the target for 95th percentile fetch latency.
	LatencyP95SLO = 5 * time.Second
)

// SLO tracking gauges, updated with each performance snapshot.
var (
	// FetchSuccessRatio tracks the observed fetch success ratio (0-1).
	FetchSuccessRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_fetch_success_ratio",
			Help: "Observed fetch success ratio (0-1), target: 0.95",
		},
	)

	// FetchLatencyP95 tracks the observed p95 fetch latency in seconds.
	FetchLatencyP95 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_fetch_latency_p95_seconds",
			Help: "Observed 95th percentile fetch latency in seconds, target: 5",
		},
	)

	// Compliance tracks whether both targets are currently met (1) or not (0).
	Compliance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_fetch_compliance",
			Help: "1 when all fetch SLO targets are met, 0 otherwise",
		},
	)
)

// Update refreshes the SLO gauges from observed totals. A window with no
// requests counts as compliant.
func Update(total, failed int64, p95 time.Duration) {
	ratio := 1.0
	if total > 0 {
		ratio = float64(total-failed) / float64(total)
	}

	FetchSuccessRatio.Set(ratio)
	FetchLatencyP95.Set(p95.Seconds())

	if ratio >= SuccessRateSLO && p95 <= LatencyP95SLO {
		Compliance.Set(1)
	} else {
		Compliance.Set(0)
	}
}
