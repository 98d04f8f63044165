package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/audit"
	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/metrics"
	"github.com/optiscale/pulse/internal/notify"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/provider/generic"
)

// Orchestrator drives one collection run: it resolves configuration,
// invokes the matching adapter, records the audit row, and publishes the
// completion event. It performs no retries; retry is the scheduler's
// responsibility.
type Orchestrator struct {
	logger    zerolog.Logger
	clock     clock.Clock
	registry  *provider.Registry
	creds     provider.CredentialSource
	writer    provider.MetricWriter
	history   audit.Recorder
	notifier  notify.Notifier
	pipeline  *metrics.Pipeline
	defaults  provider.Defaults
	dedicated map[string]provider.AdapterFactory
}

// Options bundles the orchestrator's collaborators, all constructed at
// startup and injected.
type Options struct {
	Logger    zerolog.Logger
	Clock     clock.Clock
	Registry  *provider.Registry
	Creds     provider.CredentialSource
	Writer    provider.MetricWriter
	History   audit.Recorder
	Notifier  notify.Notifier
	Pipeline  *metrics.Pipeline
	Defaults  provider.Defaults
	Dedicated map[string]provider.AdapterFactory
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		logger:    opts.Logger.With().Str("component", "orchestrator").Logger(),
		clock:     opts.Clock,
		registry:  opts.Registry,
		creds:     opts.Creds,
		writer:    opts.Writer,
		history:   opts.History,
		notifier:  opts.Notifier,
		pipeline:  opts.Pipeline,
		defaults:  opts.Defaults,
		dedicated: opts.Dedicated,
	}
	if o.clock == nil {
		o.clock = clock.RealClock{}
	}
	if o.notifier == nil {
		o.notifier = notify.NopNotifier{}
	}
	return o
}

// Run executes one collection for (provider, customer). The returned
// result is final: every failure mode, configuration included, lands in
// its ErrorMessage rather than an error return, and exactly one audit row
// and at most one completion event are produced per invocation.
func (o *Orchestrator) Run(ctx context.Context, taskID, providerSlug, customerID string, dataTypes []string) provider.CollectionResult {
	log := o.logger.With().
		Str("task_id", taskID).
		Str("provider", providerSlug).
		Str("customer_id", customerID).
		Logger()

	started := o.clock.Now()
	result := o.collect(ctx, providerSlug, customerID, dataTypes)
	if result.StartedAt.IsZero() {
		result.StartedAt = started
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = o.clock.Now()
	}
	if len(dataTypes) > 0 {
		result.DataType = strings.Join(dataTypes, ",")
	}

	if o.pipeline != nil {
		o.pipeline.CollectionDuration.WithLabelValues(providerSlug).
			Observe(result.CompletedAt.Sub(result.StartedAt).Seconds())
		if result.ErrorMessage != "" {
			o.pipeline.SourceErrors.WithLabelValues(providerSlug).Inc()
		}
	}

	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	attempt := audit.Attempt{
		TaskID:           taskID,
		CustomerID:       customerID,
		Provider:         providerSlug,
		DataType:         result.DataType,
		Status:           status,
		StartedAt:        result.StartedAt,
		CompletedAt:      result.CompletedAt,
		RecordsCollected: result.RecordsCollected,
		ErrorMessage:     result.ErrorMessage,
	}
	if err := o.history.RecordAttempt(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("failed to record collection attempt")
	}

	o.publish(ctx, log, result)

	log.Info().
		Bool("success", result.Success).
		Int("records", result.RecordsCollected).
		Str("error", result.ErrorMessage).
		Msg("collection run finished")
	return result
}

// collect resolves configuration and delegates to the matching adapter.
func (o *Orchestrator) collect(ctx context.Context, providerSlug, customerID string, dataTypes []string) provider.CollectionResult {
	meta, err := o.registry.Lookup(providerSlug)
	if err != nil {
		return o.failed(providerSlug, customerID, dataTypes, err)
	}
	if !meta.Enabled {
		return o.failed(providerSlug, customerID, dataTypes, fmt.Errorf("provider %s is disabled", providerSlug))
	}

	// Credentials are resolved fresh on every run so a rotated key takes
	// effect on the next collection without a restart.
	creds, err := o.creds.Credentials(ctx, customerID, providerSlug)
	if err != nil {
		return o.failed(providerSlug, customerID, dataTypes, err)
	}
	cfg, err := provider.ResolveConfig(meta, creds, customerID, o.defaults)
	if err != nil {
		return o.failed(providerSlug, customerID, dataTypes, err)
	}

	var adapter provider.CollectorAdapter
	switch meta.IntegrationType {
	case provider.IntegrationGeneric:
		// The generic adapter collects every enabled category in one pass
		// even when the caller asked for a single one; requested categories
		// are reflected at the reporting layer, never by re-querying.
		adapter = generic.New(o.logger, o.clock, o.writer, cfg)
	case provider.IntegrationDedicated:
		factory, ok := o.dedicated[meta.Slug]
		if !ok {
			return o.failed(providerSlug, customerID, dataTypes, fmt.Errorf("no dedicated adapter registered for provider %s", providerSlug))
		}
		adapter, err = factory(cfg)
		if err != nil {
			return o.failed(providerSlug, customerID, dataTypes, err)
		}
	default:
		return o.failed(providerSlug, customerID, dataTypes, fmt.Errorf("provider %s has unknown integration type %q", providerSlug, meta.IntegrationType))
	}

	return adapter.Collect(ctx)
}

func (o *Orchestrator) failed(providerSlug, customerID string, dataTypes []string, err error) provider.CollectionResult {
	now := o.clock.Now()
	return provider.CollectionResult{
		CustomerID:   customerID,
		Provider:     providerSlug,
		DataType:     strings.Join(dataTypes, ","),
		Success:      false,
		StartedAt:    now,
		CompletedAt:  now,
		ErrorMessage: err.Error(),
	}
}

// publish emits at most one completion event per run, best effort.
func (o *Orchestrator) publish(ctx context.Context, log zerolog.Logger, result provider.CollectionResult) {
	event := notify.Event{
		CustomerID: result.CustomerID,
		Provider:   result.Provider,
		DataType:   result.DataType,
		Timestamp:  o.clock.Now(),
	}
	if result.Success && result.RecordsCollected > 0 {
		event.EventType = notify.EventDataUpdated
		event.RecordsCount = result.RecordsCollected
	} else {
		event.EventType = notify.EventCollectionStatus
		if result.Success {
			event.Status = "succeeded"
		} else {
			event.Status = "failed"
		}
	}
	if err := o.notifier.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Msg("failed to publish completion event")
	}
}
