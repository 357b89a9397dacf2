package perfmon

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bioterminal/internal/clock"
	"bioterminal/internal/events"
)

func TestMonitor_ObserveAndSnapshot(t *testing.T) {
	mock := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(Config{Clock: mock})

	m.Observe("pubmed", 100*time.Millisecond, true)
	m.Observe("pubmed", 200*time.Millisecond, true)
	m.Observe("clinicaltrials", 300*time.Millisecond, false)

	mock.Advance(90 * time.Second)
	snap := m.Snapshot()

	if snap.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snap.TotalRequests)
	}
	if snap.Successes != 2 || snap.Failures != 1 {
		t.Errorf("Successes/Failures = %d/%d, want 2/1", snap.Successes, snap.Failures)
	}
	if snap.Uptime != 90*time.Second {
		t.Errorf("Uptime = %v, want 90s", snap.Uptime)
	}
	if snap.Latency.Average != 200*time.Millisecond {
		t.Errorf("Average = %v, want 200ms", snap.Latency.Average)
	}
	if snap.HeapBytes == 0 {
		t.Error("HeapBytes should be nonzero")
	}

	ps, ok := snap.PerSource["pubmed"]
	if !ok {
		t.Fatal("missing per-source entry for pubmed")
	}
	if ps.Successes != 2 || ps.Failures != 0 {
		t.Errorf("pubmed Successes/Failures = %d/%d, want 2/0", ps.Successes, ps.Failures)
	}
	if ct := snap.PerSource["clinicaltrials"]; ct.Failures != 1 {
		t.Errorf("clinicaltrials Failures = %d, want 1", ct.Failures)
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(Config{})
	m.Observe("pubmed", 50*time.Millisecond, true)
	m.Reset()

	snap := m.Snapshot()
	if snap.TotalRequests != 0 || len(snap.PerSource) != 0 {
		t.Errorf("after Reset got %d requests and %d sources, want zeros",
			snap.TotalRequests, len(snap.PerSource))
	}
}

func TestMonitor_ConcurrentObserve(t *testing.T) {
	m := NewMonitor(Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Observe("pubmed", time.Millisecond, n%2 == 0)
			}
		}(i)
	}
	wg.Wait()

	if snap := m.Snapshot(); snap.TotalRequests != 400 {
		t.Errorf("TotalRequests = %d, want 400", snap.TotalRequests)
	}
}

func TestMonitor_EmitSnapshotEvent(t *testing.T) {
	var mu sync.Mutex
	var got []events.Event
	hub := events.NewHub(events.SinkFunc(func(ev events.Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))

	m := NewMonitor(Config{Hub: hub})
	m.Observe("pubmed", 10*time.Millisecond, true)
	m.emitSnapshot()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Type != events.TypePerfSnapshot {
		t.Errorf("event type = %q, want %q", got[0].Type, events.TypePerfSnapshot)
	}
	if !strings.Contains(got[0].Detail, "requests=1") {
		t.Errorf("event detail %q should contain request count", got[0].Detail)
	}
}

func TestWriteSnapshot(t *testing.T) {
	mock := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	m := NewMonitor(Config{Clock: mock})
	m.Observe("pubmed", 120*time.Millisecond, true)
	m.Observe("pubmed", 80*time.Millisecond, false)
	mock.Advance(time.Minute)

	var b strings.Builder
	if err := WriteSnapshot(&b, m.Snapshot()); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		"# TYPE perf_requests_total counter",
		"perf_requests_total 2",
		"perf_requests_success_total 1",
		"perf_requests_failed_total 1",
		"perf_latency_avg_ms 100",
		"perf_uptime_seconds 60",
		"# HELP perf_heap_bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteFamilies(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by outcome.",
	}, []string{"outcome"})
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_connections",
		Help: "Open pool connections.",
	})
	reg.MustRegister(c, g)
	c.WithLabelValues("hit").Add(7)
	c.WithLabelValues("miss").Add(3)
	g.Set(4)

	var b strings.Builder
	if err := WriteFamilies(&b, reg); err != nil {
		t.Fatalf("WriteFamilies: %v", err)
	}
	out := b.String()

	for _, want := range []string{
		"# TYPE cache_requests_total counter",
		`cache_requests_total{outcome="hit"} 7`,
		`cache_requests_total{outcome="miss"} 3`,
		"# TYPE pool_connections gauge",
		"pool_connections 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
