package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetrics_Records(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordWait("pubmed", 50*time.Millisecond)
	m.RecordAdjustment("pubmed", "increase")
	m.RecordAdjustment("pubmed", "throttle")
	m.SetRate("pubmed", 2.5)
	m.RecordThrottleEvent("pubmed")

	if got := testutil.ToFloat64(m.currentRate.WithLabelValues("pubmed")); got != 2.5 {
		t.Errorf("current rate gauge = %g, want 2.5", got)
	}
	if got := testutil.ToFloat64(m.adjustmentsTotal.WithLabelValues("pubmed", "increase")); got != 1 {
		t.Errorf("increase adjustments = %g, want 1", got)
	}
	if got := testutil.ToFloat64(m.adjustmentsTotal.WithLabelValues("pubmed", "throttle")); got != 1 {
		t.Errorf("throttle adjustments = %g, want 1", got)
	}
	if got := testutil.ToFloat64(m.throttleEventsTotal.WithLabelValues("pubmed")); got != 1 {
		t.Errorf("throttle events = %g, want 1", got)
	}
}

func TestPrometheusMetrics_RegistryGathers(t *testing.T) {
	m := NewPrometheusMetrics()
	m.SetRate("fda-news", 1.0)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected gathered metric families, got none")
	}
}

func TestAdaptiveLimiter_WithPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics()
	cfg := testConfig()
	cfg.Metrics = m
	l := mustLimiter(t, cfg)

	l.RecordError()

	if got := testutil.ToFloat64(m.currentRate.WithLabelValues("test-source")); got != 1.0 {
		t.Errorf("current rate gauge = %g, want 1.0 after error", got)
	}
	if got := testutil.ToFloat64(m.adjustmentsTotal.WithLabelValues("test-source", "decrease")); got != 1 {
		t.Errorf("decrease adjustments = %g, want 1", got)
	}
}
