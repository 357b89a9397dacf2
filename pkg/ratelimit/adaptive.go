package ratelimit

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// AdaptiveLimiter is a feedback-driven rate limiter for a single upstream source.
//
// Callers block on Wait before each outbound request, then report the outcome
// with RecordSuccess, RecordError, or RecordThrottle. The limiter raises its
// rate additively after sustained success and cuts it multiplicatively on
// failure, so throughput converges toward what the upstream tolerates.
//
// All methods are safe for concurrent use.
type AdaptiveLimiter struct {
	cfg     Config
	limiter *rate.Limiter

	mu                   sync.Mutex
	currentRate          float64
	consecutiveSuccesses int
	totalWaits           int64
	increases            int64
	decreases            int64
	throttleEvents       int64
}

// Stats is a point-in-time snapshot of limiter state and counters.
type Stats struct {
	Source               string
	Rate                 float64
	ConsecutiveSuccesses int
	TotalWaits           int64
	Increases            int64
	Decreases            int64
	ThrottleEvents       int64
}

// NewAdaptiveLimiter creates a limiter from cfg. Missing values are filled
// with defaults; an invalid config returns an error.
func NewAdaptiveLimiter(cfg Config) (*AdaptiveLimiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &AdaptiveLimiter{
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.InitialRate), cfg.Burst),
		currentRate: cfg.InitialRate,
	}
	cfg.Metrics.SetRate(cfg.Source, cfg.InitialRate)
	return l, nil
}

// Wait blocks until a permit is available or the context is done.
// It returns the context's error on cancellation.
func (l *AdaptiveLimiter) Wait(ctx context.Context) error {
	start := l.cfg.Clock.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.totalWaits++
	l.mu.Unlock()

	l.cfg.Metrics.RecordWait(l.cfg.Source, l.cfg.Clock.Now().Sub(start))
	return nil
}

// Allow reports whether a request may proceed right now without blocking.
func (l *AdaptiveLimiter) Allow() bool {
	return l.limiter.Allow()
}

// RecordSuccess reports a successful request. After SuccessStep consecutive
// successes the rate is raised by IncreaseDelta, up to MaxRate.
func (l *AdaptiveLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveSuccesses++
	if l.consecutiveSuccesses < l.cfg.SuccessStep {
		return
	}
	l.consecutiveSuccesses = 0

	if l.currentRate >= l.cfg.MaxRate {
		return
	}
	l.increases++
	l.setRateLocked(l.currentRate+l.cfg.IncreaseDelta, "increase")
}

// RecordError reports a failed request. The rate is cut by DecreaseFactor,
// down to MinRate, and the success streak resets.
func (l *AdaptiveLimiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveSuccesses = 0
	l.decreases++
	l.setRateLocked(l.currentRate*l.cfg.DecreaseFactor, "decrease")
}

// RecordThrottle reports an explicit throttle response from the upstream
// (HTTP 429 or 403). The rate is cut by ThrottleFactor, harder than a
// plain error, down to MinRate.
func (l *AdaptiveLimiter) RecordThrottle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveSuccesses = 0
	l.throttleEvents++
	l.cfg.Metrics.RecordThrottleEvent(l.cfg.Source)
	l.setRateLocked(l.currentRate*l.cfg.ThrottleFactor, "throttle")
}

// setRateLocked clamps newRate to [MinRate, MaxRate] and applies it.
// Callers must hold l.mu.
func (l *AdaptiveLimiter) setRateLocked(newRate float64, direction string) {
	if newRate < l.cfg.MinRate {
		newRate = l.cfg.MinRate
	}
	if newRate > l.cfg.MaxRate {
		newRate = l.cfg.MaxRate
	}
	if newRate == l.currentRate {
		return
	}

	old := l.currentRate
	l.currentRate = newRate
	l.limiter.SetLimit(rate.Limit(newRate))

	l.cfg.Metrics.RecordAdjustment(l.cfg.Source, direction)
	l.cfg.Metrics.SetRate(l.cfg.Source, newRate)

	slog.Debug("rate limit adjusted",
		slog.String("source", l.cfg.Source),
		slog.String("direction", direction),
		slog.Float64("old_rate", old),
		slog.Float64("new_rate", newRate))
}

// Rate returns the current sustained rate in requests per second.
func (l *AdaptiveLimiter) Rate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRate
}

// Stats returns a snapshot of the limiter's state and counters.
func (l *AdaptiveLimiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Source:               l.cfg.Source,
		Rate:                 l.currentRate,
		ConsecutiveSuccesses: l.consecutiveSuccesses,
		TotalWaits:           l.totalWaits,
		Increases:            l.increases,
		Decreases:            l.decreases,
		ThrottleEvents:       l.throttleEvents,
	}
}
