// Command authflow is an interactive terminal client for the authentication
// flow controller. It signs users up, in and out against the Redis backed
// reference provider and prints one-time codes to stdout in place of mail.
//
// Configuration is read from AUTHFLOW_* environment variables. Without
// AUTHFLOW_REDIS_ADDR an in-process miniredis is used.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MrEthical07/authflow"
	authprom "github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/MrEthical07/authflow/provider/local"
	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authflow:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	client, closeRedis, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	tokens, err := newTokenManager(cfg, logger)
	if err != nil {
		return err
	}

	codes := local.NewSlogSender(slog.New(slog.NewTextHandler(os.Stdout, nil)), slog.LevelInfo)
	provider, err := local.New(client, tokens, cfg.providerConfig(),
		local.WithLogger(logger),
		local.WithCodeSender(codes),
	)
	if err != nil {
		return err
	}
	defer provider.Close()

	sink, closeSink, err := auditSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	ctrl, err := authflow.New().
		WithConfig(cfg.controllerConfig()).
		WithProvider(provider).
		WithLogger(logger).
		WithAuditSink(sink).
		Build()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if cfg.MetricsAddr != "" {
		srv := metricsServer(cfg.MetricsAddr, ctrl)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	history := historyPath(cfg)
	if f, err := os.Open(history); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(history, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	sh := newShell(ctrl, provider, tokens, line, os.Stdout)
	defer sh.close()
	return sh.run(ctx)
}

func auditSink(cfg config, logger *slog.Logger) (authflow.AuditSink, func(), error) {
	if cfg.AuditLog == "" {
		return authflow.NewSlogSink(logger, slog.LevelDebug), func() {}, nil
	}
	f, err := os.OpenFile(cfg.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return authflow.NewJSONWriterSink(f), func() { _ = f.Close() }, nil
}

func metricsServer(addr string, ctrl *authflow.Controller) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		authprom.NewCollector(ctrl),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func historyPath(cfg config) string {
	if cfg.HistoryFile != "" {
		return cfg.HistoryFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "authflow_history")
}
