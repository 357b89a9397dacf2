// Package perfmon provides an in-process performance monitor for the fetch
// layer: latency histograms with percentiles, heap and uptime tracking,
// periodic snapshot events, and a plain-text metrics dump.
package perfmon

import (
	"sort"
	"sync"
	"time"
)

// Histogram is a circular buffer of latency samples with percentile
// calculation. All methods are safe for concurrent use.
type Histogram struct {
	mu       sync.RWMutex
	samples  []time.Duration
	capacity int
	index    int
	count    int64
	total    time.Duration
	min      time.Duration
	max      time.Duration
}

// LatencyMetrics summarizes the samples currently held by a histogram.
type LatencyMetrics struct {
	Count   int64
	Average time.Duration
	Min     time.Duration
	Max     time.Duration
	P50     time.Duration
	P95     time.Duration
	P99     time.Duration
}

// NewHistogram creates a histogram holding up to sampleSize recent samples.
func NewHistogram(sampleSize int) *Histogram {
	if sampleSize <= 0 {
		sampleSize = 1000
	}
	return &Histogram{
		samples:  make([]time.Duration, sampleSize),
		capacity: sampleSize,
	}
}

// Add records a latency sample, overwriting the oldest when full.
func (h *Histogram) Add(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.index] = latency
	h.index = (h.index + 1) % h.capacity
	h.count++
	h.total += latency

	if h.min == 0 || latency < h.min {
		h.min = latency
	}
	if latency > h.max {
		h.max = latency
	}
}

// Metrics returns the current latency summary including percentiles.
func (h *Histogram) Metrics() LatencyMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return LatencyMetrics{}
	}

	sampleCount := int(h.count)
	if sampleCount > h.capacity {
		sampleCount = h.capacity
	}
	sorted := make([]time.Duration, sampleCount)
	copy(sorted, h.samples[:sampleCount])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencyMetrics{
		Count:   h.count,
		Average: h.total / time.Duration(h.count),
		Min:     h.min,
		Max:     h.max,
		P50:     percentile(sorted, 50),
		P95:     percentile(sorted, 95),
		P99:     percentile(sorted, 99),
	}
}

// Reset clears all samples.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = make([]time.Duration, h.capacity)
	h.index = 0
	h.count = 0
	h.total = 0
	h.min = 0
	h.max = 0
}

// percentile returns the value at the given percentile using linear
// interpolation between closest ranks. sorted must be in ascending order.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	if p <= 0 {
		return sorted[0]
	}

	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	fraction := rank - float64(lower)
	return time.Duration(float64(sorted[lower]) + fraction*float64(sorted[upper]-sorted[lower]))
}
