package config

import (
	"fmt"
	"time"

	pkgconfig "bioterminal/pkg/config"
)

// ServiceConfig holds service-wide settings loaded from the environment.
type ServiceConfig struct {
	// RegistryPath is the path to the YAML source registry.
	RegistryPath string

	// MetricsAddr is the listen address for the metrics and health server.
	MetricsAddr string

	// CrawlSchedule is a cron expression for the crawl-all job.
	CrawlSchedule string

	// CrawlParallelism caps concurrent source fetches during a crawl.
	CrawlParallelism int

	// SnapshotInterval is how often the performance monitor emits snapshots.
	SnapshotInterval time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// LoadServiceConfig reads service settings from environment variables.
//
// Environment variables:
//   - REGISTRY_PATH: Source registry file (default: "configs/sources.yaml")
//   - METRICS_ADDR: Metrics server listen address (default: ":9090")
//   - CRAWL_SCHEDULE: Cron expression for crawls (default: "*/15 * * * *")
//   - CRAWL_PARALLELISM: Max concurrent source fetches (default: 5)
//   - SNAPSHOT_INTERVAL: Performance snapshot interval (default: 1m)
//   - SHUTDOWN_TIMEOUT: Graceful shutdown timeout (default: 30s)
func LoadServiceConfig() (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		RegistryPath:     pkgconfig.GetEnvString("REGISTRY_PATH", "configs/sources.yaml"),
		MetricsAddr:      pkgconfig.GetEnvString("METRICS_ADDR", ":9090"),
		CrawlSchedule:    pkgconfig.GetEnvString("CRAWL_SCHEDULE", "*/15 * * * *"),
		CrawlParallelism: pkgconfig.GetEnvInt("CRAWL_PARALLELISM", 5),
		SnapshotInterval: pkgconfig.GetEnvDuration("SNAPSHOT_INTERVAL", time.Minute),
		ShutdownTimeout:  pkgconfig.GetEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.CrawlParallelism < 1 {
		return nil, fmt.Errorf("CRAWL_PARALLELISM must be at least 1, got %d", cfg.CrawlParallelism)
	}
	if err := pkgconfig.ValidatePositiveDuration(cfg.SnapshotInterval); err != nil {
		return nil, fmt.Errorf("invalid SNAPSHOT_INTERVAL: %w", err)
	}
	if err := pkgconfig.ValidateDurationRange(cfg.ShutdownTimeout, time.Second, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	return cfg, nil
}
