package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ecocode-labs/logqueue/internal/coordinator"
	"github.com/ecocode-labs/logqueue/internal/dashboard"
)

const version = "0.1.0"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Pull-based work queue coordinator for log processing",
	}

	cfg := coordinator.ConfigFromEnv()

	root.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP API listen port")
	root.Flags().DurationVar(&cfg.MonitorInterval, "monitor-interval", cfg.MonitorInterval, "monitor tick period")
	root.Flags().DurationVar(&cfg.TaskTimeout, "task-timeout", cfg.TaskTimeout, "heartbeat expiry before a task is requeued")
	root.Flags().IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "per-task retry cap before failing permanently")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "diagnostic verbosity: debug|info|warn|error")
	root.Flags().BoolVar(&cfg.NoDebugAsserts, "no-debug-asserts", cfg.NoDebugAsserts, "return errors instead of panicking on logic-bug assertions")

	metricsPort := root.Flags().String("metrics-port", getEnv("METRICS_PORT", "9090"), "Prometheus exposition and dashboard listen port")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		return run(cfg, *metricsPort)
	}
	return root
}

func run(cfg *coordinator.Config, metricsPort string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("starting coordinator", "version", version, "port", cfg.Port)

	registry := prometheus.NewRegistry()
	c := coordinator.New(cfg, registry)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.Start(ctx)

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: coordinator.NewServer(c).Mux(),
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": version})
		})

		dashboardService := dashboard.NewService(c)
		dashboardHandler := dashboard.NewHandler(dashboardService)
		dashboardHandler.RegisterRoutes(mux)

		addr := ":" + metricsPort
		slog.Info("metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown error", "error", err)
	}
	c.Stop()

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
