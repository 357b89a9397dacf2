package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bioterminal/internal/clock"
	"bioterminal/internal/domain/entity"
	"bioterminal/internal/events"
	"bioterminal/internal/infra/cache"
	"bioterminal/internal/infra/httppool"
	"bioterminal/internal/observability/metrics"
	"bioterminal/internal/resilience/circuitbreaker"
	"bioterminal/internal/resilience/retry"
	"bioterminal/pkg/ratelimit"
)

// defaultCrawlParallelism bounds concurrent source fetches during CrawlAll.
const defaultCrawlParallelism = 5

// StackConfig carries the per-source tuning knobs for one resilience stack.
type StackConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	CallTimeout      time.Duration

	RateMinPerSecond     float64
	RateMaxPerSecond     float64
	RateInitialPerSecond float64
	RateBurst            int

	CacheTTL        time.Duration
	CacheMaxEntries int

	MaxRetryAttempts   int
	RetryInitialDelay  time.Duration
	RetryMaxDelay      time.Duration
	RetryBackoffFactor float64
}

// StackDeps carries the shared collaborators injected into every stack.
type StackDeps struct {
	Pool           *httppool.Pool
	Hub            *events.Hub       // may be nil
	Monitor        Observer          // may be nil
	Clock          clock.Clock       // defaults to the system clock
	LimiterMetrics ratelimit.Metrics // defaults to no-op
}

// NewSourceStack builds a fully wired orchestrator for one source: its own
// breaker, limiter, and cache, sharing the injected pool. Breaker transitions
// and cache evictions are published to the event hub and recorded as metrics.
func NewSourceStack(src entity.Source, parse ParseFunc, scfg StackConfig, deps StackDeps) (*Orchestrator, error) {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:             src.ID,
		FailureThreshold: scfg.FailureThreshold,
		SuccessThreshold: scfg.SuccessThreshold,
		ResetTimeout:     scfg.ResetTimeout,
		CallTimeout:      scfg.CallTimeout,
		Clock:            deps.Clock,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
			metrics.RecordBreakerTransition(name, to.String())
			deps.Hub.Emit(events.Event{
				Type:   events.TypeBreakerTransition,
				Source: name,
				From:   from.String(),
				To:     to.String(),
			})
		},
	})

	limiter, err := ratelimit.NewAdaptiveLimiter(ratelimit.Config{
		Source:      src.ID,
		MinRate:     scfg.RateMinPerSecond,
		MaxRate:     scfg.RateMaxPerSecond,
		InitialRate: scfg.RateInitialPerSecond,
		Burst:       scfg.RateBurst,
		Metrics:     deps.LimiterMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("building limiter for %s: %w", src.ID, err)
	}

	cacheEntries := scfg.CacheMaxEntries
	if cacheEntries <= 0 {
		cacheEntries = 1000
	}
	payloadCache := cache.New[[]entity.Record](cache.Config{
		Name:            src.ID,
		MaxEntries:      cacheEntries,
		TTL:             scfg.CacheTTL,
		MaxStaleEntries: cacheEntries,
		Clock:           deps.Clock,
		OnEvict: func(key, reason string) {
			deps.Hub.Emit(events.Event{
				Type:   events.TypeCacheEvicted,
				Source: src.ID,
				Key:    key,
				Detail: reason,
			})
		},
	})

	retryCfg := retry.Config{
		MaxAttempts:    scfg.MaxRetryAttempts,
		InitialDelay:   scfg.RetryInitialDelay,
		MaxDelay:       scfg.RetryMaxDelay,
		Multiplier:     scfg.RetryBackoffFactor,
		JitterFraction: 0.1,
	}
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.ScraperConfig()
	}

	return NewOrchestrator(OrchestratorConfig{
		Source:  src,
		Parse:   parse,
		Cache:   payloadCache,
		Limiter: limiter,
		Breaker: breaker,
		Retry:   retryCfg,
		Pool:    deps.Pool,
		Monitor: deps.Monitor,
		Clock:   deps.Clock,
	})
}

// Manager holds one orchestrator per configured upstream source and exposes
// aggregate operations to route handlers and operational consumers.
type Manager struct {
	mu            sync.RWMutex
	orchestrators map[string]*Orchestrator

	pool        *httppool.Pool
	parallelism int
}

// NewManager creates a manager sharing pool across all registered sources.
// parallelism bounds concurrent fetches in CrawlAll; zero means the default.
func NewManager(pool *httppool.Pool, parallelism int) *Manager {
	if parallelism <= 0 {
		parallelism = defaultCrawlParallelism
	}
	return &Manager{
		orchestrators: make(map[string]*Orchestrator),
		pool:          pool,
		parallelism:   parallelism,
	}
}

// Register adds an orchestrator to the manager. Registering the same source
// ID twice is an error.
func (m *Manager) Register(o *Orchestrator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := o.Source().ID
	if _, exists := m.orchestrators[id]; exists {
		return fmt.Errorf("source %s already registered", id)
	}
	m.orchestrators[id] = o
	return nil
}

// FetchLatest fetches the latest records for one source.
func (m *Manager) FetchLatest(ctx context.Context, sourceID string, params map[string]string) (*Result, error) {
	o, err := m.lookup(sourceID)
	if err != nil {
		return nil, err
	}
	return o.Fetch(ctx, params)
}

// FetchBatch runs several parameterized fetches against one source with
// bounded concurrency. Results are returned in the order of the given param
// sets; the first error cancels the remaining fetches.
func (m *Manager) FetchBatch(ctx context.Context, sourceID string, paramSets []map[string]string) ([]*Result, error) {
	o, err := m.lookup(sourceID)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(paramSets))
	sem := make(chan struct{}, m.parallelism)
	eg, egCtx := errgroup.WithContext(ctx)

	for i, params := range paramSets {
		i, params := i, params
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := o.Fetch(egCtx, params)
			if err != nil {
				return fmt.Errorf("batch fetch %s[%d]: %w", sourceID, i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CrawlStats summarizes one CrawlAll pass.
type CrawlStats struct {
	Sources  int
	Records  int64
	Errors   int64
	Stale    int64
	Duration time.Duration
}

// CrawlAll fetches every registered source concurrently, bounded by the
// manager's parallelism. A failing source is logged and counted; it never
// aborts the crawl for the others.
func (m *Manager) CrawlAll(ctx context.Context) (*CrawlStats, error) {
	start := time.Now()
	orchestrators := m.snapshot()

	stats := &CrawlStats{Sources: len(orchestrators)}
	sem := make(chan struct{}, m.parallelism)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, o := range orchestrators {
		o := o
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := o.Fetch(egCtx, nil)
			if err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				slog.Warn("source crawl failed",
					slog.String("source_id", o.Source().ID),
					slog.Any("error", err))
				return nil // keep crawling the other sources
			}
			if result.Stale {
				atomic.AddInt64(&stats.Stale, 1)
			}
			atomic.AddInt64(&stats.Records, int64(len(result.Records)))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	slog.Info("crawl completed",
		slog.Int("sources", stats.Sources),
		slog.Int64("records", stats.Records),
		slog.Int64("errors", stats.Errors),
		slog.Int64("stale", stats.Stale),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// ManagerHealth aggregates per-source health. The aggregate status never
// hides a sub-source failure: any source that is not healthy degrades the
// whole, and the per-source map always carries the detail.
type ManagerHealth struct {
	Status  HealthStatus
	Sources map[string]SourceHealth
}

// Health derives health for every registered source plus the aggregate.
func (m *Manager) Health() ManagerHealth {
	orchestrators := m.snapshot()

	health := ManagerHealth{
		Status:  StatusHealthy,
		Sources: make(map[string]SourceHealth, len(orchestrators)),
	}
	for _, o := range orchestrators {
		sh := o.Health()
		health.Sources[sh.SourceID] = sh
		if sh.Status != StatusHealthy {
			health.Status = StatusDegraded
		}
	}
	return health
}

// ClearCache drops cached payloads for one source, or for every source when
// sourceID is empty.
func (m *Manager) ClearCache(sourceID string) error {
	if sourceID == "" {
		for _, o := range m.snapshot() {
			o.ClearCache()
		}
		return nil
	}

	o, err := m.lookup(sourceID)
	if err != nil {
		return err
	}
	o.ClearCache()
	return nil
}

// ManagerStats aggregates per-source statistics plus shared pool state.
type ManagerStats struct {
	Sources map[string]SourceStats
	Pool    httppool.Stats
}

// Stats returns statistics for every source and the shared connection pool.
func (m *Manager) Stats() ManagerStats {
	orchestrators := m.snapshot()

	stats := ManagerStats{
		Sources: make(map[string]SourceStats, len(orchestrators)),
	}
	for _, o := range orchestrators {
		s := o.Stats()
		stats.Sources[s.SourceID] = s
	}
	if m.pool != nil {
		stats.Pool = m.pool.Stats()
	}
	return stats
}

// SourceIDs returns the registered source IDs.
func (m *Manager) SourceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.orchestrators))
	for id := range m.orchestrators {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) lookup(sourceID string) (*Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orchestrators[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %s: %w", sourceID, ErrSourceNotFound)
	}
	return o, nil
}

func (m *Manager) snapshot() []*Orchestrator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Orchestrator, 0, len(m.orchestrators))
	for _, o := range m.orchestrators {
		out = append(out, o)
	}
	return out
}
