package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bioterminal/internal/clock"
	"bioterminal/internal/domain/entity"
	"bioterminal/internal/infra/cache"
	"bioterminal/internal/infra/httppool"
	"bioterminal/internal/observability/metrics"
	"bioterminal/internal/observability/tracing"
	"bioterminal/internal/resilience/circuitbreaker"
	"bioterminal/internal/resilience/retry"
	"bioterminal/pkg/ratelimit"
)

// outcomeWindow is how many recent fetch outcomes feed the health status.
const outcomeWindow = 50

// latencyDegradedThreshold marks a source degraded when its last observed
// fetch took longer than this.
const latencyDegradedThreshold = 5 * time.Second

// ParseFunc turns a raw response body into parsed records. It runs outside
// the retry and breaker boundary: a parse failure is not a network failure.
type ParseFunc func(ctx context.Context, body []byte, src *entity.Source) ([]entity.Record, error)

// Observer receives per-fetch latency observations. The performance monitor
// implements it; tests can substitute their own.
type Observer interface {
	Observe(sourceID string, latency time.Duration, success bool)
}

// Result is the outcome of a fetch operation.
type Result struct {
	Records []entity.Record

	// FromCache is true when the records were served from the fresh cache
	// without touching the network.
	FromCache bool

	// Stale is true when the upstream was unavailable and the records are
	// an expired cached payload served as a degraded fallback.
	Stale bool
}

// OrchestratorConfig wires one source's resilience stack together.
type OrchestratorConfig struct {
	Source  entity.Source
	Parse   ParseFunc
	Cache   *cache.Cache[[]entity.Record]
	Limiter *ratelimit.AdaptiveLimiter
	Breaker *circuitbreaker.CircuitBreaker
	Retry   retry.Config
	Pool    *httppool.Pool
	Monitor Observer    // optional
	Clock   clock.Clock // defaults to the system clock
}

// Orchestrator performs resilient fetches for a single upstream source:
// cache check, rate limiter wait, then a breaker-guarded retry-wrapped
// pooled request, with the parse step outside the resilience boundary.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu          sync.Mutex
	outcomes    [outcomeWindow]bool
	outcomeIdx  int
	outcomeLen  int
	lastLatency time.Duration
	totalFetch  int64
	totalErrors int64
}

// NewOrchestrator creates an orchestrator from cfg.
// Source, Parse, Cache, Limiter, Breaker, and Pool are required.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if err := cfg.Source.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}
	if cfg.Parse == nil {
		return nil, ErrNoParser
	}
	if cfg.Cache == nil || cfg.Limiter == nil || cfg.Breaker == nil || cfg.Pool == nil {
		return nil, errors.New("cache, limiter, breaker, and pool are all required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Source returns the source this orchestrator fetches.
func (o *Orchestrator) Source() entity.Source {
	return o.cfg.Source
}

// Fetch retrieves records for the source, serving from cache when fresh.
// On a cache miss it waits for a rate limiter permit, then executes a
// breaker-guarded, retry-wrapped pooled request. When the breaker is open
// and an expired cached payload exists, that payload is served with the
// Stale flag set instead of returning an error.
func (o *Orchestrator) Fetch(ctx context.Context, params map[string]string) (*Result, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "fetch.source",
		trace.WithAttributes(attribute.String("source.id", o.cfg.Source.ID)))
	defer span.End()

	sourceID := o.cfg.Source.ID
	key := Fingerprint(sourceID, params)
	start := o.cfg.Clock.Now()

	if records, ok := o.cfg.Cache.Get(key); ok {
		metrics.RecordCacheOutcome(sourceID, "hit")
		return &Result{Records: records, FromCache: true}, nil
	}
	metrics.RecordCacheOutcome(sourceID, "miss")

	if err := o.cfg.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	targetURL, err := o.buildURL(params)
	if err != nil {
		return nil, err
	}

	var body []byte
	var revalidated []entity.Record

	execErr := o.cfg.Breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.WithBackoff(ctx, o.cfg.Retry, func() error {
			resp, reqErr := o.cfg.Pool.Get(ctx, targetURL)
			if reqErr != nil {
				o.cfg.Limiter.RecordError()
				return reqErr
			}

			if resp.NotModified {
				// Upstream confirmed our expired copy is still current.
				if stale, ok := o.cfg.Cache.Stale(key); ok {
					o.cfg.Limiter.RecordSuccess()
					revalidated = stale
					return nil
				}
				// Validators without a retained payload: retry unconditionally.
				o.cfg.Pool.ForgetValidators(targetURL)
				return &TransientError{SourceID: sourceID, Err: errors.New("304 without retained payload")}
			}

			switch {
			case resp.StatusCode == http.StatusOK:
				o.cfg.Limiter.RecordSuccess()
				body = resp.Body
				return nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
				o.cfg.Limiter.RecordThrottle()
				return &retry.HTTPError{StatusCode: resp.StatusCode, Message: "upstream throttled request"}
			default:
				o.cfg.Limiter.RecordError()
				return &retry.HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
			}
		})
	})

	latency := o.cfg.Clock.Now().Sub(start)

	if execErr != nil {
		o.recordOutcome(false, latency)
		o.observe(latency, false)

		if errors.Is(execErr, circuitbreaker.ErrOpen) {
			metrics.RecordFetch(sourceID, "circuit_open", latency)
			if stale, ok := o.cfg.Cache.Stale(key); ok {
				slog.Warn("circuit open, serving stale cache",
					slog.String("source_id", sourceID),
					slog.Int("records", len(stale)))
				metrics.RecordCacheOutcome(sourceID, "stale")
				return &Result{Records: stale, Stale: true}, nil
			}
			return nil, execErr
		}

		if errors.Is(execErr, httppool.ErrPoolTimeout) {
			metrics.PoolTimeoutsTotal.Inc()
		}
		metrics.RecordFetch(sourceID, "error", latency)
		return nil, fmt.Errorf("fetching source %s: %w", sourceID, execErr)
	}

	if revalidated != nil {
		o.cfg.Cache.Set(key, revalidated)
		metrics.CacheEntries.WithLabelValues(sourceID).Set(float64(o.cfg.Cache.Len()))
		o.recordOutcome(true, latency)
		o.observe(latency, true)
		metrics.RecordFetch(sourceID, "success", latency)
		return &Result{Records: revalidated}, nil
	}

	// Parse outside the breaker and retry boundary.
	records, parseErr := o.cfg.Parse(ctx, body, &o.cfg.Source)
	if parseErr != nil {
		o.recordOutcome(false, latency)
		o.observe(latency, false)
		metrics.RecordFetch(sourceID, "error", latency)
		return nil, &ParseError{SourceID: sourceID, Err: parseErr}
	}

	now := o.cfg.Clock.Now()
	for i := range records {
		records[i].SourceID = sourceID
		records[i].FetchedAt = now
	}

	o.cfg.Cache.Set(key, records)
	metrics.CacheEntries.WithLabelValues(sourceID).Set(float64(o.cfg.Cache.Len()))
	o.recordOutcome(true, latency)
	o.observe(latency, true)
	metrics.RecordFetch(sourceID, "success", latency)
	metrics.RecordRecordsFetched(sourceID, len(records))

	return &Result{Records: records}, nil
}

// ClearCache drops all cached payloads for this source.
func (o *Orchestrator) ClearCache() {
	o.cfg.Cache.Clear()
}

// buildURL appends params as query values to the source URL.
func (o *Orchestrator) buildURL(params map[string]string) (string, error) {
	if len(params) == 0 {
		return o.cfg.Source.URL, nil
	}
	u, err := url.Parse(o.cfg.Source.URL)
	if err != nil {
		return "", fmt.Errorf("parsing source URL: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o *Orchestrator) observe(latency time.Duration, success bool) {
	if o.cfg.Monitor != nil {
		o.cfg.Monitor.Observe(o.cfg.Source.ID, latency, success)
	}
}

// recordOutcome pushes a fetch outcome into the sliding window that feeds
// the health status.
func (o *Orchestrator) recordOutcome(success bool, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.outcomes[o.outcomeIdx] = success
	o.outcomeIdx = (o.outcomeIdx + 1) % outcomeWindow
	if o.outcomeLen < outcomeWindow {
		o.outcomeLen++
	}
	o.lastLatency = latency
	o.totalFetch++
	if !success {
		o.totalErrors++
	}
}

// errorRate returns the failure fraction over the outcome window.
func (o *Orchestrator) errorRate() (rate float64, observed int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.outcomeLen == 0 {
		return 0, 0
	}
	failures := 0
	for i := 0; i < o.outcomeLen; i++ {
		if !o.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(o.outcomeLen), o.outcomeLen
}

// HealthStatus tags the derived health of a source.
type HealthStatus string

// Health status values, from best to worst.
const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
)

// SourceHealth is the derived health of one source, combining the outcome
// window with breaker, limiter, and cache state.
type SourceHealth struct {
	SourceID     string
	Status       HealthStatus
	BreakerState circuitbreaker.State
	ErrorRate    float64
	SuccessRate  float64
	LastLatency  time.Duration
	CacheStats   cache.Stats
	LimiterStats ratelimit.Stats
}

// Health derives the current health of this source.
//
// Rules: error rate above 50% or an open breaker means down; error rate
// above 10%, last latency above 5 seconds, or a half-open breaker means
// degraded; otherwise healthy.
func (o *Orchestrator) Health() SourceHealth {
	errRate, _ := o.errorRate()
	breakerState := o.cfg.Breaker.State()

	o.mu.Lock()
	lastLatency := o.lastLatency
	o.mu.Unlock()

	status := StatusHealthy
	switch {
	case errRate > 0.5 || breakerState == circuitbreaker.StateOpen:
		status = StatusDown
	case errRate > 0.1 || lastLatency > latencyDegradedThreshold || breakerState == circuitbreaker.StateHalfOpen:
		status = StatusDegraded
	}

	return SourceHealth{
		SourceID:     o.cfg.Source.ID,
		Status:       status,
		BreakerState: breakerState,
		ErrorRate:    errRate,
		SuccessRate:  1 - errRate,
		LastLatency:  lastLatency,
		CacheStats:   o.cfg.Cache.Stats(),
		LimiterStats: o.cfg.Limiter.Stats(),
	}
}

// SourceStats aggregates the per-component statistics of one source.
type SourceStats struct {
	SourceID     string
	TotalFetches int64
	TotalErrors  int64
	BreakerStats circuitbreaker.Stats
	CacheStats   cache.Stats
	LimiterStats ratelimit.Stats
}

// Stats returns a snapshot of this source's fetch statistics.
func (o *Orchestrator) Stats() SourceStats {
	o.mu.Lock()
	totalFetch := o.totalFetch
	totalErrors := o.totalErrors
	o.mu.Unlock()

	return SourceStats{
		SourceID:     o.cfg.Source.ID,
		TotalFetches: totalFetch,
		TotalErrors:  totalErrors,
		BreakerStats: o.cfg.Breaker.Stats(),
		CacheStats:   o.cfg.Cache.Stats(),
		LimiterStats: o.cfg.Limiter.Stats(),
	}
}
