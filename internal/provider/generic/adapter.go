package generic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/record"
	"github.com/optiscale/pulse/internal/source"
)

// Adapter collects every enabled metric category for one
// (provider, customer) pair using only a metrics-query endpoint and,
// optionally, a scrape endpoint and cost-derivation inputs. It implements
// provider.CollectorAdapter for any provider exposing Prometheus-compatible
// metrics.
type Adapter struct {
	cfg    provider.CollectorConfig
	logger zerolog.Logger
	clock  clock.Clock
	writer provider.MetricWriter
	prom   *source.Client
	scrape *source.ScrapeClient
}

// New builds a generic adapter from a resolved config. No network calls
// happen here; the first I/O is inside Collect, after validation.
func New(logger zerolog.Logger, clk clock.Clock, writer provider.MetricWriter, cfg provider.CollectorConfig) *Adapter {
	a := &Adapter{
		cfg: cfg,
		logger: logger.With().
			Str("component", "generic_adapter").
			Str("provider", cfg.Provider).
			Str("customer_id", cfg.CustomerID).
			Logger(),
		clock:  clk,
		writer: writer,
	}
	if clk == nil {
		a.clock = clock.RealClock{}
	}
	a.prom = source.NewClient(a.logger, cfg.PrometheusURL, cfg.Timeout, cfg.RetryAttempts)
	if cfg.ScrapeURL != "" {
		a.scrape = source.NewScrapeClient(a.logger, cfg.ScrapeURL, cfg.Timeout)
	}
	return a
}

// ProviderName implements provider.CollectorAdapter.
func (a *Adapter) ProviderName() string { return a.cfg.Provider }

// DataType implements provider.CollectorAdapter. The generic adapter
// always collects every enabled category in one pass.
func (a *Adapter) DataType() string { return "all" }

// ValidateCredentials implements provider.CollectorAdapter.
func (a *Adapter) ValidateCredentials(ctx context.Context) bool {
	return a.cfg.Validate() == nil
}

// fetchTask is one independent metric-category fetch. A task returns
// either records or an error, never both.
type fetchTask struct {
	name string
	run  func(ctx context.Context) ([]record.Record, error)
}

// Collect runs all enabled fetch tasks concurrently, routes each
// successful result list to the batch writer, and aggregates failures.
// One failing source never aborts the others, and no failure escapes the
// returned result.
func (a *Adapter) Collect(ctx context.Context) provider.CollectionResult {
	started := a.clock.Now()
	result := provider.CollectionResult{
		CustomerID: a.cfg.CustomerID,
		Provider:   a.cfg.Provider,
		DataType:   a.DataType(),
		StartedAt:  started,
	}

	if err := a.cfg.Validate(); err != nil {
		result.CompletedAt = a.clock.Now()
		result.ErrorMessage = err.Error()
		return result
	}

	tasks := a.buildTasks()

	type outcome struct {
		records []record.Record
		err     error
	}
	outcomes := make([]outcome, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task fetchTask) {
			defer wg.Done()
			defer func() {
				// A panicking source must degrade to a source-level error,
				// not take down the sibling fetches or the caller.
				if r := recover(); r != nil {
					outcomes[i] = outcome{err: fmt.Errorf("panic: %v", r)}
				}
			}()
			taskCtx := ctx
			if a.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
				defer cancel()
			}
			records, err := task.run(taskCtx)
			outcomes[i] = outcome{records: records, err: err}
		}(i, task)
	}
	wg.Wait()

	sources := make([]string, 0, len(tasks))
	var errs []string
	written := 0
	for i, task := range tasks {
		sources = append(sources, task.name)
		o := outcomes[i]
		if o.err != nil {
			a.logger.Warn().Err(o.err).Str("source", task.name).Msg("source fetch failed")
			errs = append(errs, fmt.Sprintf("%s: %v", task.name, o.err))
			continue
		}
		if len(o.records) == 0 {
			continue
		}
		n, err := provider.WriteRecords(ctx, a.writer, o.records)
		written += n
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: write: %v", task.name, err))
		}
	}

	result.CompletedAt = a.clock.Now()
	result.RecordsCollected = written
	result.ErrorMessage = strings.Join(errs, "; ")
	// Best effort succeeds if it produced value: only a run where every
	// source failed and nothing was written counts as a failure.
	result.Success = len(errs) == 0 || written > 0
	result.Metadata = map[string]string{"sources": strings.Join(sources, ",")}
	return result
}

// buildTasks assembles the fixed list of independent fetches. Cost and
// GPU tasks are present only when their inputs are configured; their
// absence is a configuration choice, not a failure.
func (a *Adapter) buildTasks() []fetchTask {
	tasks := []fetchTask{
		{name: "performance", run: a.fetchPerformance},
		{name: "resource", run: a.fetchResources},
		{name: "application", run: a.fetchApplication},
	}
	if a.cfg.HourlyRate > 0 {
		tasks = append(tasks, fetchTask{name: "cost", run: a.fetchCost})
	}
	if a.scrape != nil {
		tasks = append(tasks, fetchTask{name: "gpu", run: a.fetchGPU})
	}
	return tasks
}

// resourceID is the provider-qualified identity queried metrics are
// attributed to.
func (a *Adapter) resourceID() string {
	if a.cfg.InstanceID != "" {
		return a.cfg.InstanceID
	}
	return a.cfg.Provider + "-cluster"
}

func (a *Adapter) fetchPerformance(ctx context.Context) ([]record.Record, error) {
	now := a.clock.Now()
	var out []record.Record
	for _, q := range performanceQueries {
		value, ok, err := a.prom.QueryScalar(ctx, q.expr)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.name, err)
		}
		if !ok {
			continue
		}
		out = append(out, record.PerformanceMetric{
			Timestamp:    now,
			CustomerID:   a.cfg.CustomerID,
			Provider:     a.cfg.Provider,
			ResourceID:   a.resourceID(),
			ResourceName: a.cfg.Provider,
			MetricName:   q.name,
			MetricValue:  value,
			Unit:         q.unit,
			WorkloadType: "inference",
			Metadata:     map[string]string{"query": q.expr},
		})
	}
	return out, nil
}

func (a *Adapter) fetchResources(ctx context.Context) ([]record.Record, error) {
	now := a.clock.Now()
	var out []record.Record

	build := func(name string, value, capacity float64, unit string) record.ResourceMetric {
		return record.ResourceMetric{
			Timestamp:    now,
			CustomerID:   a.cfg.CustomerID,
			Provider:     a.cfg.Provider,
			ResourceID:   a.resourceID(),
			ResourceName: name,
			ResourceType: "compute",
			Status:       "active",
			Utilization:  value,
			Capacity:     capacity,
			Unit:         unit,
		}
	}

	for _, q := range resourceQueries {
		value, ok, err := a.prom.QueryScalar(ctx, q.expr)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.name, err)
		}
		if !ok {
			continue
		}
		out = append(out, build(q.name, value, 0, q.unit))
	}

	// Memory utilization is derived from used/total and emitted only when
	// both values resolve.
	used, usedOK, err := a.prom.QueryScalar(ctx, memoryUsedQuery)
	if err != nil {
		return nil, fmt.Errorf("query memory_used: %w", err)
	}
	total, totalOK, err := a.prom.QueryScalar(ctx, memoryTotalQuery)
	if err != nil {
		return nil, fmt.Errorf("query memory_total: %w", err)
	}
	if usedOK && totalOK {
		utilization := 0.0
		if total > 0 {
			utilization = used / total * 100
		}
		out = append(out, build("memory_utilization", utilization, total, "percent"))
	}

	return out, nil
}

func (a *Adapter) fetchApplication(ctx context.Context) ([]record.Record, error) {
	now := a.clock.Now()
	var out []record.Record
	for _, q := range applicationQueries {
		ratio, ok, err := a.prom.QueryScalar(ctx, q.expr)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.name, err)
		}
		if !ok {
			continue
		}
		out = append(out, record.ApplicationMetric{
			Timestamp:       now,
			CustomerID:      a.cfg.CustomerID,
			Provider:        a.cfg.Provider,
			ApplicationID:   a.resourceID(),
			ApplicationName: "inference",
			MetricType:      record.AppQuality,
			Score:           ratio * 100,
			Metadata:        map[string]string{"metric": q.name},
		})
	}
	return out, nil
}

func (a *Adapter) fetchCost(ctx context.Context) ([]record.Record, error) {
	cost, ok := source.DeriveCost(a.clock.Now(), a.cfg.CustomerID, a.cfg.Provider, a.cfg.InstanceID, a.cfg.HourlyRate, a.cfg.PodStartTime)
	if !ok {
		return nil, nil
	}
	return []record.Record{cost}, nil
}

func (a *Adapter) fetchGPU(ctx context.Context) ([]record.Record, error) {
	samples, err := a.scrape.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	metrics := source.GPUResourceMetrics(a.clock.Now(), a.cfg.CustomerID, a.cfg.Provider, a.cfg.InstanceID, samples)
	out := make([]record.Record, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, m)
	}
	return out, nil
}
