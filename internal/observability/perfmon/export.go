package perfmon

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// WriteSnapshot renders a snapshot as plain-text metric lines in the
// name/help/type/value layout. Latencies are reported in milliseconds.
func WriteSnapshot(w io.Writer, snap Snapshot) error {
	lines := []struct {
		name  string
		help  string
		typ   string
		value float64
	}{
		{"perf_requests_total", "Total observed fetch requests.", "counter", float64(snap.TotalRequests)},
		{"perf_requests_success_total", "Observed fetch requests that succeeded.", "counter", float64(snap.Successes)},
		{"perf_requests_failed_total", "Observed fetch requests that failed.", "counter", float64(snap.Failures)},
		{"perf_latency_avg_ms", "Average fetch latency.", "gauge", float64(snap.Latency.Average.Milliseconds())},
		{"perf_latency_p95_ms", "95th percentile fetch latency.", "gauge", float64(snap.Latency.P95.Milliseconds())},
		{"perf_heap_bytes", "Current heap allocation.", "gauge", float64(snap.HeapBytes)},
		{"perf_uptime_seconds", "Seconds since monitor start.", "gauge", snap.Uptime.Seconds()},
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %g\n",
			l.name, l.help, l.name, l.typ, l.name, l.value); err != nil {
			return err
		}
	}
	return nil
}

// WriteFamilies dumps every counter and gauge from the gatherer in the same
// plain-text layout, so registry metrics (cache hits and misses, breaker
// states, pool counters) appear alongside the snapshot lines.
func WriteFamilies(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	sort.Slice(families, func(i, j int) bool {
		return families[i].GetName() < families[j].GetName()
	})

	for _, mf := range families {
		typ := mf.GetType()
		if typ != dto.MetricType_COUNTER && typ != dto.MetricType_GAUGE {
			continue
		}
		name := mf.GetName()
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n",
			name, mf.GetHelp(), name, typeName(typ)); err != nil {
			return err
		}
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s%s %g\n", name, labelSuffix(m), metricValue(typ, m)); err != nil {
				return err
			}
		}
	}
	return nil
}

func typeName(t dto.MetricType) string {
	if t == dto.MetricType_COUNTER {
		return "counter"
	}
	return "gauge"
}

func labelSuffix(m *dto.Metric) string {
	if len(m.GetLabel()) == 0 {
		return ""
	}
	s := "{"
	for i, lp := range m.GetLabel() {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue())
	}
	return s + "}"
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	if t == dto.MetricType_COUNTER {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}
