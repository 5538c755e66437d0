package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/gateway"
	"github.com/klyr/promptguard/internal/logging"
	"github.com/klyr/promptguard/internal/observability"
	"github.com/klyr/promptguard/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var configPath string
	var modeOverride string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the promptguard gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyModeOverride(cfg, modeOverride)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runGateway(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&modeOverride, "mode", "", "Override mode for all profiles (enforce|shadow)")

	return cmd
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Protocol: cfg.Tracing.Protocol,
		Service:  "promptguard",
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	gw, err := gateway.New(cfg, gateway.Options{Tracer: provider.Tracer(), Logger: logger})
	if err != nil {
		return err
	}

	if cfg.Logging.DecisionLog != "" {
		decisionLog, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetDecisionLogger(decisionLog)
	}

	metricsSrv := startMetricsServer(cfg, gw, logger)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			serverErr <- srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
			return
		}
		serverErr <- srv.ListenAndServe()
	}()
	logger.Info("gateway listening", "addr", cfg.Server.Listen, "tls", cfg.Server.TLS.Enabled, "tracing", provider.Enabled)

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, gw *gateway.Gateway, logger *slog.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	gw.SetMetrics(metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

func applyModeOverride(cfg *config.Config, mode string) {
	if mode == "" {
		return
	}
	for name, profile := range cfg.Profiles {
		profile.Mode = mode
		cfg.Profiles[name] = profile
	}
}
