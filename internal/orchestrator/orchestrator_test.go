package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiscale/pulse/internal/audit"
	"github.com/optiscale/pulse/internal/clock"
	"github.com/optiscale/pulse/internal/config"
	"github.com/optiscale/pulse/internal/metrics"
	"github.com/optiscale/pulse/internal/notify"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/record"
)

type discardWriter struct{}

func (discardWriter) WriteCost(ctx context.Context, m []record.CostMetric) (int, error) {
	return len(m), nil
}
func (discardWriter) WritePerformance(ctx context.Context, m []record.PerformanceMetric) (int, error) {
	return len(m), nil
}
func (discardWriter) WriteResource(ctx context.Context, m []record.ResourceMetric) (int, error) {
	return len(m), nil
}
func (discardWriter) WriteApplication(ctx context.Context, m []record.ApplicationMetric) (int, error) {
	return len(m), nil
}

type fixture struct {
	orch     *Orchestrator
	history  *audit.MemoryRecorder
	notifier *notify.MemoryNotifier
}

func newFixture(t *testing.T, providers []config.Provider, customers []config.Customer) fixture {
	t.Helper()
	history := audit.NewMemoryRecorder()
	notifier := notify.NewMemoryNotifier()
	orch := New(Options{
		Logger:   zerolog.Nop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)),
		Registry: provider.NewRegistry(providers),
		Creds:    provider.NewConfigCredentialSource(customers),
		Writer:   discardWriter{},
		History:  history,
		Notifier: notifier,
		Pipeline: metrics.NewPipeline(prometheus.NewRegistry()),
		Defaults: provider.Defaults{Timeout: 2 * time.Second, RetryAttempts: 1},
	})
	return fixture{orch: orch, history: history, notifier: notifier}
}

func emptyResultServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
}

func TestRunSucceedsWithoutData(t *testing.T) {
	prom := emptyResultServer(t)
	defer prom.Close()

	f := newFixture(t,
		[]config.Provider{{Slug: "runpod", Enabled: true, PrometheusURL: prom.URL}},
		[]config.Customer{{ID: "acme", Active: true, Providers: []config.CustomerProvider{{Provider: "runpod"}}}},
	)

	result := f.orch.Run(context.Background(), "task-1", "runpod", "acme", nil)

	assert.True(t, result.Success)
	assert.Zero(t, result.RecordsCollected)
	assert.Empty(t, result.ErrorMessage)

	// Exactly one audit row per run.
	attempts, err := f.history.History(context.Background(), audit.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "task-1", attempts[0].TaskID)
	assert.Equal(t, "succeeded", attempts[0].Status)

	// No new records means a status event, not a data_updated event.
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventCollectionStatus, events[0].EventType)
	assert.Equal(t, "succeeded", events[0].Status)
}

func TestRunPublishesDataUpdated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") == `sum(vllm:num_requests_waiting)` {
			fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1756166400,"3"]}]}}`)
			return
		}
		fmt.Fprint(w, `{"status":"success","data":{"resultType":"vector","result":[]}}`)
	}))
	defer server.Close()

	f := newFixture(t,
		[]config.Provider{{Slug: "runpod", Enabled: true, PrometheusURL: server.URL}},
		[]config.Customer{{ID: "acme", Active: true, Providers: []config.CustomerProvider{{Provider: "runpod"}}}},
	)

	result := f.orch.Run(context.Background(), "task-1", "runpod", "acme", []string{"performance"})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RecordsCollected)
	assert.Equal(t, "performance", result.DataType, "requested categories are reflected in the report")

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventDataUpdated, events[0].EventType)
	assert.Equal(t, 1, events[0].RecordsCount)
}

func TestRunDisabledProvider(t *testing.T) {
	f := newFixture(t,
		[]config.Provider{{Slug: "runpod", Enabled: false, PrometheusURL: "http://prom:9090"}},
		[]config.Customer{{ID: "acme", Active: true}},
	)

	result := f.orch.Run(context.Background(), "task-1", "runpod", "acme", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "disabled")

	attempts, err := f.history.History(context.Background(), audit.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "failed", attempts[0].Status)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "failed", events[0].Status)
}

func TestRunUnknownProvider(t *testing.T) {
	f := newFixture(t, nil, nil)

	result := f.orch.Run(context.Background(), "task-1", "nonexistent", "acme", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "unknown provider")
}

func TestRunMissingConfiguration(t *testing.T) {
	// Enabled provider with no endpoint anywhere: the run fails before
	// any network call and still leaves an audit row.
	f := newFixture(t,
		[]config.Provider{{Slug: "bare", Enabled: true}},
		[]config.Customer{{ID: "acme", Active: true, Providers: []config.CustomerProvider{{Provider: "bare"}}}},
	)

	result := f.orch.Run(context.Background(), "task-1", "bare", "acme", nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "prometheus_url")

	attempts, err := f.history.History(context.Background(), audit.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "failed", attempts[0].Status)
}

type stubAdapter struct {
	result provider.CollectionResult
}

func (a stubAdapter) ValidateCredentials(ctx context.Context) bool        { return true }
func (a stubAdapter) Collect(ctx context.Context) provider.CollectionResult { return a.result }
func (a stubAdapter) ProviderName() string                                { return a.result.Provider }
func (a stubAdapter) DataType() string                                    { return "cost" }

func TestRunDedicatedAdapter(t *testing.T) {
	providers := []config.Provider{{
		Slug:            "vendorx",
		IntegrationType: "dedicated",
		Enabled:         true,
		PrometheusURL:   "http://vendorx-metrics:9090",
	}}
	customers := []config.Customer{{ID: "acme", Active: true, Providers: []config.CustomerProvider{{Provider: "vendorx"}}}}

	history := audit.NewMemoryRecorder()
	orch := New(Options{
		Logger:   zerolog.Nop(),
		Registry: provider.NewRegistry(providers),
		Creds:    provider.NewConfigCredentialSource(customers),
		Writer:   discardWriter{},
		History:  history,
		Pipeline: metrics.NewPipeline(prometheus.NewRegistry()),
		Dedicated: map[string]provider.AdapterFactory{
			"vendorx": func(cfg provider.CollectorConfig) (provider.CollectorAdapter, error) {
				return stubAdapter{result: provider.CollectionResult{
					CustomerID: cfg.CustomerID,
					Provider:   cfg.Provider,
					Success:    true, RecordsCollected: 5,
				}}, nil
			},
		},
	})

	result := orch.Run(context.Background(), "task-1", "vendorx", "acme", nil)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.RecordsCollected)
}

func TestRunDedicatedAdapterMissingFactory(t *testing.T) {
	f := newFixture(t,
		[]config.Provider{{Slug: "vendorx", IntegrationType: "dedicated", Enabled: true, PrometheusURL: "http://vendorx:9090"}},
		[]config.Customer{{ID: "acme", Active: true, Providers: []config.CustomerProvider{{Provider: "vendorx"}}}},
	)

	result := f.orch.Run(context.Background(), "task-1", "vendorx", "acme", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "no dedicated adapter")
}
