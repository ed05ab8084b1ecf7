// Signald is the signal intelligence daemon.
//
// It ingests customer feedback over HTTP, enriches each signal with an LLM
// and an embedding, classifies it against the workspace's initiatives, and
// serves deduplication, clustering and notification endpoints.
//
// Configuration is loaded from ~/.config/signald/config.yaml (or --config)
// and SIGNALD_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	signald
//
//	# Configure via environment
//	SIGNALD_SERVER_HTTP_PORT=9292 SIGNALD_QUEUE_DRIVER=nats signald
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	httpserver "github.com/fyrsmithlabs/signald/internal/http"
	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/signald/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  signald [--config path]   Start the signald daemon\n")
			fmt.Fprintf(os.Stderr, "  signald version           Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("signald by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon and blocks until ctx is cancelled.
//
//  1. Initializes logger and telemetry
//  2. Opens storage and the model clients
//  3. Wires the pipeline services and the processing queue
//  4. Serves HTTP until ctx is cancelled, then drains in reverse order
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info(ctx, "starting signald",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Path),
		zap.String("queue", cfg.Queue.Driver),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	app, err := initServices(cfg, deps, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}

	srv, err := httpserver.NewServer(app.registry, zl, &httpserver.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		GitHubSecret: cfg.Webhook.GitHubSecret.Value(),
		WebhookRate:  cfg.Webhook.RateLimit,
		WebhookBurst: cfg.Webhook.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	// Stop accepting requests before draining the queue they feed.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown failed", zap.Error(err))
	}
	if err := app.queue.Stop(shutdownCtx); err != nil {
		zl.Warn("queue did not drain before shutdown timeout", zap.Error(err))
	}
	return serveErr
}

// initLogger builds the structured logger from the observability section.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Observability.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.Format = cfg.Observability.LogFormat
	logCfg.Fields["version"] = version
	return logging.NewLogger(logCfg, nil)
}
