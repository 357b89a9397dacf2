// Command scraperd runs the source fetch daemon: it loads the source
// registry, builds a resilient fetch stack per source and crawls them on a
// cron schedule, exposing metrics and health over HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"bioterminal/internal/config"
	"bioterminal/internal/events"
	"bioterminal/internal/infra/httppool"
	"bioterminal/internal/infra/scraper"
	"bioterminal/internal/observability/logging"
	"bioterminal/internal/observability/metrics"
	"bioterminal/internal/observability/perfmon"
	"bioterminal/internal/usecase/fetch"
	"bioterminal/pkg/ratelimit"
)

func main() {
	logger := logging.NewLogger()

	svcCfg, err := config.LoadServiceConfig()
	if err != nil {
		logger.Error("failed to load service configuration", slog.Any("error", err))
		os.Exit(1)
	}

	registry, err := config.LoadRegistry(svcCfg.RegistryPath)
	if err != nil {
		logger.Error("failed to load source registry",
			slog.String("path", svcCfg.RegistryPath), slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := events.NewHub(events.NewLogSink(logger), events.NewPrometheusSink(nil))

	pool := newPool(registry.Pool, hub)
	defer pool.Close()

	monitor := perfmon.NewMonitor(perfmon.Config{Hub: hub})
	go monitor.StartSnapshots(ctx, svcCfg.SnapshotInterval)
	defer monitor.Stop()

	limiterMetrics := ratelimit.NewPrometheusMetrics()

	manager, err := buildManager(logger, registry, svcCfg, pool, hub, monitor, limiterMetrics)
	if err != nil {
		logger.Error("failed to build fetch manager", slog.Any("error", err))
		os.Exit(1)
	}

	srv := startMetricsServer(svcCfg.MetricsAddr, manager, monitor, limiterMetrics, logger)

	startCron(ctx, logger, manager, svcCfg)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), svcCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

// newPool builds the shared connection pool with hooks feeding metrics and
// the event hub.
func newPool(pc config.PoolConfig, hub *events.Hub) *httppool.Pool {
	cfg := pc.HTTPPool()
	cfg.OnConnCreated = func(origin, connID string) {
		metrics.PoolConnections.Inc()
		hub.Emit(events.Event{
			Type:   events.TypePoolConnCreated,
			Origin: origin,
			Key:    connID,
		})
	}
	cfg.OnConnRemoved = func(origin, connID, reason string) {
		metrics.PoolConnections.Dec()
		hub.Emit(events.Event{
			Type:   events.TypePoolConnRemoved,
			Origin: origin,
			Key:    connID,
			Detail: reason,
		})
	}
	return httppool.New(cfg)
}

// buildManager builds one orchestrator per active source and registers them.
func buildManager(
	logger *slog.Logger,
	registry *config.Registry,
	svcCfg *config.ServiceConfig,
	pool *httppool.Pool,
	hub *events.Hub,
	monitor *perfmon.Monitor,
	limiterMetrics ratelimit.Metrics,
) (*fetch.Manager, error) {
	manager := fetch.NewManager(pool, svcCfg.CrawlParallelism)
	deps := fetch.StackDeps{Pool: pool, Hub: hub, Monitor: monitor, LimiterMetrics: limiterMetrics}

	active := 0
	for _, sc := range registry.Sources {
		src := sc.Source()
		if !src.Active {
			logger.Info("skipping inactive source", slog.String("source_id", src.ID))
			continue
		}

		parse, err := scraper.ParserFor(src.SourceType)
		if err != nil {
			return nil, err
		}

		orch, err := fetch.NewSourceStack(*src, parse, sc.StackConfig(), deps)
		if err != nil {
			return nil, err
		}
		if err := manager.Register(orch); err != nil {
			return nil, err
		}
		active++
	}

	logger.Info("fetch manager initialized",
		slog.Int("sources", active),
		slog.Int("parallelism", svcCfg.CrawlParallelism))
	return manager, nil
}

// startCron schedules periodic crawls of every registered source.
func startCron(ctx context.Context, logger *slog.Logger, manager *fetch.Manager, cfg *config.ServiceConfig) {
	c := cron.New()

	_, err := c.AddFunc(cfg.CrawlSchedule, func() {
		runCrawl(ctx, logger, manager)
	})
	if err != nil {
		logger.Error("failed to schedule crawl job",
			slog.String("schedule", cfg.CrawlSchedule), slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	logger.Info("crawl schedule active", slog.String("schedule", cfg.CrawlSchedule))
}

// runCrawl executes a single crawl pass with a timeout.
func runCrawl(ctx context.Context, logger *slog.Logger, manager *fetch.Manager) {
	crawlCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	stats, err := manager.CrawlAll(crawlCtx)
	if err != nil {
		logger.Error("crawl failed", slog.Any("error", err))
		return
	}

	logger.Info("crawl finished",
		slog.Int("sources", stats.Sources),
		slog.Int64("records", stats.Records),
		slog.Int64("errors", stats.Errors),
		slog.Int64("stale", stats.Stale),
		slog.Duration("duration", stats.Duration))
}
