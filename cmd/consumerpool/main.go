package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ecocode-labs/logqueue/internal/pool"
)

const version = "0.1.0"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var coordinatorURL string
	var initialSize int
	var metricsPort string

	root := &cobra.Command{
		Use:   "consumerpool",
		Short: "Autoscaling consumer pool for the log processing work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pool.LoadConfigFile(configPath)
			if err != nil {
				return err
			}
			if coordinatorURL != "" {
				cfg.CoordinatorURL = coordinatorURL
			}
			if initialSize > 0 {
				cfg.InitialSize = initialSize
			}
			return run(cfg, metricsPort)
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "TOML config file with weights and autoscaler bounds")
	root.Flags().StringVar(&coordinatorURL, "coordinator-url", "", "overrides coordinator_url from the config file")
	root.Flags().IntVar(&initialSize, "initial-size", 0, "overrides initial_size from the config file")
	root.Flags().StringVar(&metricsPort, "metrics-port", getEnv("METRICS_PORT", "9091"), "Prometheus exposition listen port")

	return root
}

func run(cfg *pool.Config, metricsPort string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	slog.Info("starting consumer pool", "version", version, "coordinator_url", cfg.CoordinatorURL, "initial_size", cfg.InitialSize)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	p := pool.New(cfg, registry)
	if err := p.Start(ctx, cfg.InitialSize, cfg.Weights); err != nil {
		return err
	}
	p.StartAutoscaler(ctx)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": version})
		})

		addr := ":" + metricsPort
		slog.Info("metrics server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	p.Stop()
	slog.Info("shutdown complete", "stats", p.Stats())
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
