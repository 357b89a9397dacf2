// Package observability provides the observability infrastructure for the
// fetch layer: structured logging, Prometheus metrics, OpenTelemetry tracing,
// performance monitoring, and SLO tracking.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//   - perfmon: In-process performance monitor with latency percentiles
//   - slo: Service level objective targets and compliance gauges
//   - tracing: OpenTelemetry tracing integration
//
// Example usage:
//
//	import (
//	    "bioterminal/internal/observability/logging"
//	    "bioterminal/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    metrics.RecordRecordsFetched("example-source", 10)
//	}
package observability
