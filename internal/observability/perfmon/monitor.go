package perfmon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"bioterminal/internal/clock"
	"bioterminal/internal/events"
	"bioterminal/internal/observability/slo"
)

const defaultSampleSize = 1000

// Monitor aggregates fetch outcomes across sources. It satisfies the
// orchestrator's observer contract via Observe.
type Monitor struct {
	mu        sync.RWMutex
	perSource map[string]*sourceStats
	latency   *Histogram
	successes int64
	failures  int64

	clock     clock.Clock
	hub       *events.Hub
	startedAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

type sourceStats struct {
	latency   *Histogram
	successes int64
	failures  int64
}

// Config controls monitor construction. Zero values get sensible defaults;
// Hub may be nil when no snapshot events are wanted.
type Config struct {
	SampleSize int
	Clock      clock.Clock
	Hub        *events.Hub
}

// NewMonitor creates a monitor with the given configuration.
func NewMonitor(cfg Config) *Monitor {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = defaultSampleSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &Monitor{
		perSource: make(map[string]*sourceStats),
		latency:   NewHistogram(cfg.SampleSize),
		clock:     cfg.Clock,
		hub:       cfg.Hub,
		startedAt: cfg.Clock.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Observe records one fetch outcome for a source.
func (m *Monitor) Observe(sourceID string, latency time.Duration, success bool) {
	m.latency.Add(latency)

	m.mu.Lock()
	ss, ok := m.perSource[sourceID]
	if !ok {
		ss = &sourceStats{latency: NewHistogram(defaultSampleSize)}
		m.perSource[sourceID] = ss
	}
	if success {
		m.successes++
		ss.successes++
	} else {
		m.failures++
		ss.failures++
	}
	m.mu.Unlock()

	ss.latency.Add(latency)
}

// SourceSnapshot holds the aggregate view for one source.
type SourceSnapshot struct {
	Successes int64
	Failures  int64
	Latency   LatencyMetrics
}

// Snapshot is a point-in-time view of the whole monitor.
type Snapshot struct {
	Timestamp     time.Time
	Uptime        time.Duration
	TotalRequests int64
	Successes     int64
	Failures      int64
	Latency       LatencyMetrics
	HeapBytes     uint64
	GoroutineNum  int
	PerSource     map[string]SourceSnapshot
}

// Snapshot captures current counters, latency percentiles and heap usage.
func (m *Monitor) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	m.mu.RLock()
	per := make(map[string]SourceSnapshot, len(m.perSource))
	for id, ss := range m.perSource {
		per[id] = SourceSnapshot{
			Successes: ss.successes,
			Failures:  ss.failures,
			Latency:   ss.latency.Metrics(),
		}
	}
	successes := m.successes
	failures := m.failures
	m.mu.RUnlock()

	now := m.clock.Now()
	return Snapshot{
		Timestamp:     now,
		Uptime:        now.Sub(m.startedAt),
		TotalRequests: successes + failures,
		Successes:     successes,
		Failures:      failures,
		Latency:       m.latency.Metrics(),
		HeapBytes:     mem.HeapAlloc,
		GoroutineNum:  runtime.NumGoroutine(),
		PerSource:     per,
	}
}

// Reset clears all counters and samples. The start time is preserved.
func (m *Monitor) Reset() {
	m.latency.Reset()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.perSource = make(map[string]*sourceStats)
	m.successes = 0
	m.failures = 0
}

// StartSnapshots emits a snapshot event on each interval tick until the
// context is canceled or Stop is called. It blocks; run it in a goroutine.
func (m *Monitor) StartSnapshots(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.emitSnapshot()
		}
	}
}

// Stop terminates any running snapshot loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) emitSnapshot() {
	snap := m.Snapshot()
	slo.Update(snap.TotalRequests, snap.Failures, snap.Latency.P95)

	slog.Debug("performance snapshot",
		"total_requests", snap.TotalRequests,
		"failures", snap.Failures,
		"p95_ms", snap.Latency.P95.Milliseconds(),
		"heap_bytes", snap.HeapBytes,
	)

	m.hub.Emit(events.Event{
		Type: events.TypePerfSnapshot,
		Detail: fmt.Sprintf("requests=%d failures=%d p95_ms=%d heap_bytes=%d uptime_s=%d",
			snap.TotalRequests, snap.Failures, snap.Latency.P95.Milliseconds(),
			snap.HeapBytes, int64(snap.Uptime.Seconds())),
	})
}
