// Command collector runs the HTTP service that receives events, heartbeats,
// and acknowledgments from Lumen connectors.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/lumenlog/lumen/internal/collector"
	"github.com/lumenlog/lumen/internal/dedup"
	"github.com/lumenlog/lumen/internal/nats"
	"github.com/lumenlog/lumen/internal/observability"
	"github.com/lumenlog/lumen/internal/storage"
)

// Config holds all collector configuration.
type Config struct {
	// LogLevel is the log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogFormat is the log format (json, text)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP collector configuration
	Collector collector.Config `envPrefix:""`

	// NATS configuration
	NATS nats.Config `envPrefix:""`
}

func main() {
	// Load configuration from environment
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting lumen collector",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Collector.Addr,
		"db_path", cfg.Collector.DBPath,
		"nats_enabled", cfg.NATS.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Open the event store
	store, err := storage.Open(cfg.Collector.DBPath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Setup observability
	obs, err := observability.New("lumen-collector")
	if err != nil {
		logger.Error("failed to create observability module", "error", err)
		os.Exit(1)
	}

	// Start the dedup filter
	filter := dedup.New(
		cfg.Collector.Dedup.Window,
		cfg.Collector.Dedup.Capacity,
		cfg.Collector.Dedup.FPRate,
		logger,
	)
	filter.Start(ctx)

	// Optional NATS fan-out
	var publisher collector.Publisher
	var natsClient *nats.Client
	if cfg.NATS.Enabled {
		natsClient, err = nats.NewClient(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if err := natsClient.EnsureStream(ctx); err != nil {
			logger.Error("failed to ensure stream", "error", err)
			os.Exit(1)
		}

		publisher = nats.NewPublisher(natsClient.JetStream(), logger)
	}

	// Create and start HTTP server
	server, err := collector.NewServer(cfg.Collector, store, filter, publisher, obs, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Collector.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			logger.Error("NATS drain error", "error", err)
		}
	}

	obsCtx, obsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer obsCancel()
	if err := obs.Shutdown(obsCtx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}

	logger.Info("collector stopped")
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
