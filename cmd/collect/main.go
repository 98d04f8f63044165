package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/config"
	"github.com/optiscale/pulse/internal/metrics"
	"github.com/optiscale/pulse/internal/notify"
	"github.com/optiscale/pulse/internal/orchestrator"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/store"

	"github.com/optiscale/pulse/internal/audit"
)

// collect runs a single collection for one (provider, customer) pair and
// prints the result, for operators debugging a source without the daemon.
func main() {
	configPath := flag.String("config", "", "path to config file")
	providerSlug := flag.String("provider", "", "provider slug to collect from")
	customerID := flag.String("customer", "", "customer id to collect for")
	dataTypes := flag.String("types", "", "comma-separated data types (default: provider's)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Str("service", "collect").
		Logger()

	if *providerSlug == "" || *customerID == "" {
		logger.Fatal().Msg("both -provider and -customer are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	metricStore, err := store.NewStore(logger, cfg.Store.Path, cfg.Store.QueryTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open metrics store")
	}
	defer metricStore.Close()

	pipeline := metrics.NewPipeline(prometheus.NewRegistry())

	orch := orchestrator.New(orchestrator.Options{
		Logger:   logger,
		Clock:    clock.RealClock{},
		Registry: provider.NewRegistry(cfg.Providers),
		Creds:    provider.NewConfigCredentialSource(cfg.Customers),
		Writer:   metrics.NewInstrumentedWriter(metricStore, pipeline),
		History:  audit.NewMemoryRecorder(),
		Notifier: notify.NopNotifier{},
		Pipeline: pipeline,
		Defaults: provider.Defaults{
			Timeout:       cfg.Collector.Timeout,
			RetryAttempts: cfg.Collector.RetryAttempts,
		},
	})

	var types []string
	if *dataTypes != "" {
		types = strings.Split(*dataTypes, ",")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.JobTimeout)
	defer cancel()

	result := orch.Run(ctx, uuid.New().String(), *providerSlug, *customerID, types)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal().Err(err).Msg("Failed to encode result")
	}

	if !result.Success {
		os.Exit(1)
	}
}
