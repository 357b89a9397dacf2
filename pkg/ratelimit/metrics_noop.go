package ratelimit

import "time"

// NoOpMetrics is a Metrics implementation that discards all observations.
//
// Useful for tests and for callers that do not need metrics collection.
type NoOpMetrics struct{}

// RecordWait does nothing.
func (m *NoOpMetrics) RecordWait(source string, duration time.Duration) {}

// RecordAdjustment does nothing.
func (m *NoOpMetrics) RecordAdjustment(source, direction string) {}

// SetRate does nothing.
func (m *NoOpMetrics) SetRate(source string, ratePerSecond float64) {}

// RecordThrottleEvent does nothing.
func (m *NoOpMetrics) RecordThrottleEvent(source string) {}
