package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bioterminal/internal/observability/perfmon"
	"bioterminal/internal/usecase/fetch"
	"bioterminal/pkg/ratelimit"
)

// startMetricsServer serves Prometheus metrics, the plain-text performance
// dump and health endpoints. Returns the server so main can shut it down.
func startMetricsServer(addr string, manager *fetch.Manager, monitor *perfmon.Monitor, limiterMetrics *ratelimit.PrometheusMetrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/metrics/ratelimit", promhttp.HandlerFor(limiterMetrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics/export", handlePerfExport(monitor))
	mux.HandleFunc("/health", handleHealth(manager))
	mux.HandleFunc("/health/sources", handleSourceHealth(manager))
	mux.HandleFunc("/stats", handleStats(manager))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	return srv
}

// handlePerfExport writes the monitor snapshot and registry counters in the
// plain-text name/help/type/value layout.
func handlePerfExport(monitor *perfmon.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := perfmon.WriteSnapshot(w, monitor.Snapshot()); err != nil {
			return
		}
		_ = perfmon.WriteFamilies(w, prometheus.DefaultGatherer)
	}
}

// handleHealth reports aggregate health. Degraded still answers 200 so a
// single failing source does not take the whole service out of rotation.
func handleHealth(manager *fetch.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := manager.Health()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": string(health.Status)})
	}
}

// handleSourceHealth reports per-source health, answering 503 when any
// source is down or degraded.
func handleSourceHealth(manager *fetch.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := manager.Health()
		w.Header().Set("Content-Type", "application/json")
		if health.Status != fetch.StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	}
}

func handleStats(manager *fetch.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(manager.Stats())
	}
}
