package ratelimit

import (
	"fmt"
)

// Config contains the configuration for an adaptive rate limiter.
//
// Rates are expressed in requests per second. The limiter starts at
// InitialRate and stays within [MinRate, MaxRate] regardless of feedback.
type Config struct {
	// Source identifies the upstream this limiter protects. Used in logs and metrics.
	Source string

	// MinRate is the floor the rate never drops below, in requests per second
	MinRate float64

	// MaxRate is the ceiling the rate never rises above, in requests per second
	MaxRate float64

	// InitialRate is the starting rate, in requests per second
	InitialRate float64

	// Burst is the short-term burst capacity (token bucket size)
	Burst int

	// SuccessStep is the number of consecutive successes required per rate increase
	SuccessStep int

	// IncreaseDelta is added to the rate after each SuccessStep successes
	IncreaseDelta float64

	// DecreaseFactor multiplies the rate after an upstream error
	DecreaseFactor float64

	// ThrottleFactor multiplies the rate after an explicit throttle response.
	// It should be smaller than DecreaseFactor so throttling backs off harder.
	ThrottleFactor float64

	// Metrics receives limiter observations. Defaults to NoOpMetrics.
	Metrics Metrics

	// Clock is the time source. Defaults to SystemClock.
	Clock Clock
}

// Validate checks if the Config is valid.
//
// Returns an error if any configuration values are invalid.
func (c *Config) Validate() error {
	if c.MinRate <= 0 {
		return fmt.Errorf("MinRate must be positive, got %g", c.MinRate)
	}
	if c.MaxRate < c.MinRate {
		return fmt.Errorf("MaxRate (%g) must be >= MinRate (%g)", c.MaxRate, c.MinRate)
	}
	if c.InitialRate < c.MinRate || c.InitialRate > c.MaxRate {
		return fmt.Errorf("InitialRate (%g) must be within [%g, %g]", c.InitialRate, c.MinRate, c.MaxRate)
	}
	if c.Burst < 1 {
		return fmt.Errorf("Burst must be at least 1, got %d", c.Burst)
	}
	if c.SuccessStep < 1 {
		return fmt.Errorf("SuccessStep must be at least 1, got %d", c.SuccessStep)
	}
	if c.IncreaseDelta <= 0 {
		return fmt.Errorf("IncreaseDelta must be positive, got %g", c.IncreaseDelta)
	}
	if c.DecreaseFactor <= 0 || c.DecreaseFactor >= 1 {
		return fmt.Errorf("DecreaseFactor must be in (0, 1), got %g", c.DecreaseFactor)
	}
	if c.ThrottleFactor <= 0 || c.ThrottleFactor >= 1 {
		return fmt.Errorf("ThrottleFactor must be in (0, 1), got %g", c.ThrottleFactor)
	}
	return nil
}

// ApplyDefaults sets safe default values for any missing or zero configuration values.
//
// This ensures the limiter can function even if the configuration is incomplete.
func (c *Config) ApplyDefaults() {
	if c.MinRate == 0 {
		c.MinRate = 0.1 // one request every 10 seconds at the floor
	}
	if c.MaxRate == 0 {
		c.MaxRate = 10
	}
	if c.InitialRate == 0 {
		c.InitialRate = 1
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.SuccessStep == 0 {
		c.SuccessStep = 10
	}
	if c.IncreaseDelta == 0 {
		c.IncreaseDelta = 0.1
	}
	if c.DecreaseFactor == 0 {
		c.DecreaseFactor = 0.5
	}
	if c.ThrottleFactor == 0 {
		c.ThrottleFactor = 0.3
	}
	if c.Metrics == nil {
		c.Metrics = &NoOpMetrics{}
	}
	if c.Clock == nil {
		c.Clock = &SystemClock{}
	}
}

// DefaultConfig returns a Config with safe default values.
//
// This is useful for testing and as a starting point for configuration.
func DefaultConfig() Config {
	config := Config{}
	config.ApplyDefaults()
	return config
}
