package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/optiscale/pulse/internal/api"
	"github.com/optiscale/pulse/internal/audit"
	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/config"
	"github.com/optiscale/pulse/internal/metrics"
	"github.com/optiscale/pulse/internal/notify"
	"github.com/optiscale/pulse/internal/orchestrator"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/scheduler"
	"github.com/optiscale/pulse/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize logger
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "pulsed").
		Logger()

	// Initialize configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		logger = logger.Level(level)
	}

	// Columnar metrics store
	metricStore, err := store.NewStore(logger, cfg.Store.Path, cfg.Store.QueryTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open metrics store")
	}
	defer metricStore.Close()

	// Collection history. Postgres keeps the audit log across restarts;
	// without it attempts are only held in memory.
	var history audit.Recorder
	if cfg.Audit.Enabled {
		pg, err := audit.OpenPostgres(logger, audit.PostgresConfig{
			Host:     cfg.Audit.Host,
			Port:     cfg.Audit.Port,
			User:     cfg.Audit.User,
			Password: cfg.Audit.Password,
			DBName:   cfg.Audit.DBName,
			SSLMode:  cfg.Audit.SSLMode,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open audit database")
		}
		history = pg
	} else {
		logger.Warn().Msg("Audit database disabled, collection history is in-memory only")
		history = audit.NewMemoryRecorder()
	}
	defer history.Close()

	// Completion events
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Notify.PublishURL != "" {
		notifier = notify.NewHTTPNotifier(logger, cfg.Notify.PublishURL, cfg.Notify.Timeout)
	}

	// Self metrics on a private registry
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipeline := metrics.NewPipeline(promRegistry)

	registry := provider.NewRegistry(cfg.Providers)
	creds := provider.NewConfigCredentialSource(cfg.Customers)
	writer := metrics.NewInstrumentedWriter(metricStore, pipeline)

	orch := orchestrator.New(orchestrator.Options{
		Logger:   logger,
		Clock:    clock.RealClock{},
		Registry: registry,
		Creds:    creds,
		Writer:   writer,
		History:  history,
		Notifier: notifier,
		Pipeline: pipeline,
		Defaults: provider.Defaults{
			Timeout:       cfg.Collector.Timeout,
			RetryAttempts: cfg.Collector.RetryAttempts,
		},
	})

	sched := scheduler.New(logger, scheduler.Config{
		Interval:    cfg.Scheduler.Interval,
		RetryDelay:  cfg.Scheduler.RetryDelay,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		JobTimeout:  cfg.Scheduler.JobTimeout,
		SoftTimeout: cfg.Scheduler.SoftTimeout,
		Workers:     cfg.Scheduler.Workers,
		QueueSize:   cfg.Scheduler.QueueSize,
	}, clock.RealClock{}, orch, registry, creds, pipeline)

	server := api.NewServer(api.Options{
		Logger:       logger,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Trigger:      sched,
		Reader:       metricStore,
		History:      history,
		Registry:     promRegistry,
		Version:      cfg.App.Version,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	logger.Info().
		Int("port", cfg.Server.Port).
		Dur("interval", cfg.Scheduler.Interval).
		Int("providers", len(registry.Enabled())).
		Str("store", cfg.Store.Path).
		Msg("Pulse collection service started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info().Msg("Shutting down...")
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}
	sched.Stop()

	logger.Info().Msg("Shutdown complete")
}
