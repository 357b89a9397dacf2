// Package ratelimit provides adaptive client-side rate limiting for outbound requests.
//
// Unlike a fixed token bucket, the limiter here adjusts its request rate based on
// feedback from the upstream: sustained success slowly raises the rate, errors cut
// it multiplicatively, and explicit throttle responses (429/403) cut it harder.
// The package is framework-agnostic and reusable across HTTP fetchers, background
// crawlers, and CLI tools.
package ratelimit

import "time"

// Metrics defines the interface for recording rate limiter metrics.
//
// Implementations can use Prometheus, StatsD, or custom metrics systems.
type Metrics interface {
	// RecordWait records a completed wait for a permit, with the time spent blocked.
	//
	// Parameters:
	//   - source: Identifier of the upstream source being limited
	//   - duration: Time the caller was blocked waiting for a permit
	RecordWait(source string, duration time.Duration)

	// RecordAdjustment records a rate change.
	//
	// Parameters:
	//   - source: Identifier of the upstream source being limited
	//   - direction: "increase", "decrease", or "throttle"
	RecordAdjustment(source, direction string)

	// SetRate records the current request rate in requests per second.
	//
	// Parameters:
	//   - source: Identifier of the upstream source being limited
	//   - ratePerSecond: Current sustained rate
	SetRate(source string, ratePerSecond float64)

	// RecordThrottleEvent records that the upstream signalled throttling.
	//
	// Parameters:
	//   - source: Identifier of the upstream source being limited
	RecordThrottleEvent(source string)
}

// Clock provides an abstraction for time operations to enable testing.
//
// This interface allows for dependency injection of time functions,
// making it easy to test time-dependent behavior with fake clocks.
type Clock interface {
	// Now returns the current time.
	//
	// Production implementations should return time.Now().
	// Test implementations can return fixed or controlled times.
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
