package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"yetifarm/config"
	"yetifarm/observability/logging"
	telemetry "yetifarm/observability/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./farmd.toml", "Path to the configuration file")
	dataDir := flag.String("data-dir", "", "Override the configured data directory")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := run(*configFile, *dataDir, *allowMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "farmd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path, dataDir string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dir := strings.TrimSpace(dataDir); dir != "" {
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(configFile, dataDir string, allowMigrate bool) error {
	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		return err
	}
	logger, logCloser := logging.SetupWithFile("farmd", cfg.Log.Env, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "farmd",
		Environment: cfg.Log.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	n, err := openNode(cfg, logger, nodeOptions{allowMigrate: allowMigrate})
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Error("close node", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(n.server.Handler(), "farmd"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.RPCReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPCWriteTimeout) * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("farm RPC listening", slog.String("listen", cfg.ListenAddress),
			logging.MaskField("rpc_auth_token", cfg.AuthToken()),
			logging.MaskField("account_secret", cfg.AccountSecret()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve rpc: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown", slog.Any("error", err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", slog.Any("error", err))
	}
	return nil
}
