package stakingd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"stakegov/observability/logging"
	telemetry "stakegov/observability/otel"
	"stakegov/services/stakingd/config"
)

// Version is stamped at build time.
var Version = "dev"

// Main initialises and runs the staking daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stakingd/config.yaml", "path to stakingd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "stakingd",
		Env:        cfg.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = logCloser.Close() }()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stakingd",
		Version:     Version,
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(stopCtx, 15*time.Second)
	app, err := Build(dialCtx, cfg, logger, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("release resources", slog.String("error", err.Error()))
		}
	}()

	logger.Info("stakingd configured",
		slog.String("config", cfgPath),
		slog.String("database", cfg.Database.Driver),
		logging.MaskField("dsn", cfg.Database.DSN),
		slog.String("cache", cfg.Cache.Driver),
		slog.String("ledger", cfg.Ledger.Endpoint),
	)
	return app.Run(stopCtx)
}

// serve runs the HTTP server and the optional finalizer until ctx is
// cancelled, then drains in-flight requests.
func serve(ctx context.Context, httpServer *http.Server, finalizer *Finalizer, logger *slog.Logger) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("stakingd listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	})
	if finalizer != nil {
		group.Go(func() error {
			finalizer.Run(groupCtx)
			return nil
		})
	}
	return group.Wait()
}
