package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/optiscale/pulse/internal/record"
)

// CollectorAdapter is the unit of provider integration. Collect never
// panics and never returns an error: every fetch failure is captured in
// the result's ErrorMessage so callers have nothing to catch.
type CollectorAdapter interface {
	ValidateCredentials(ctx context.Context) bool
	Collect(ctx context.Context) CollectionResult
	ProviderName() string
	DataType() string
}

// AdapterFactory builds a dedicated adapter from a resolved config.
// Dedicated vendor integrations register a factory per provider slug;
// none ship with this service.
type AdapterFactory func(cfg CollectorConfig) (CollectorAdapter, error)

// MetricWriter persists typed metric records in batches, one batched
// insert per record type. Empty input is a no-op returning zero.
type MetricWriter interface {
	WriteCost(ctx context.Context, metrics []record.CostMetric) (int, error)
	WritePerformance(ctx context.Context, metrics []record.PerformanceMetric) (int, error)
	WriteResource(ctx context.Context, metrics []record.ResourceMetric) (int, error)
	WriteApplication(ctx context.Context, metrics []record.ApplicationMetric) (int, error)
}

// CollectorConfig is the resolved configuration for one collection run.
// It is built fresh per run by layering customer-stored credentials over
// provider-level environment defaults and is never cached across runs.
type CollectorConfig struct {
	Provider   string
	CustomerID string

	// PrometheusURL is the required metrics-query endpoint base URL.
	PrometheusURL string
	// ScrapeURL, when set, enables GPU metric collection from a DCGM
	// exposition endpoint.
	ScrapeURL string

	VendorAPIURL string
	VendorAPIKey string

	Timeout       time.Duration
	RetryAttempts int

	// Cost-derivation inputs. Cost collection is enabled only when
	// HourlyRate is positive.
	HourlyRate   float64
	InstanceID   string
	PodStartTime time.Time
}

// Validate fails fast, before any network call, when required fields are
// missing.
func (c *CollectorConfig) Validate() error {
	if c.Provider == "" {
		return &ConfigError{Field: "provider", Reason: "must not be empty"}
	}
	if c.CustomerID == "" {
		return &ConfigError{Field: "customer_id", Reason: "must not be empty"}
	}
	if c.PrometheusURL == "" {
		return &ConfigError{Field: "prometheus_url", Reason: "metrics-query endpoint is required"}
	}
	return nil
}

// CollectionResult summarizes one orchestrator invocation. It is created
// once at the end of a run and never mutated afterward.
type CollectionResult struct {
	CustomerID       string            `json:"customer_id"`
	Provider         string            `json:"provider"`
	DataType         string            `json:"data_type"`
	Success          bool              `json:"success"`
	RecordsCollected int               `json:"records_collected"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      time.Time         `json:"completed_at"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ConfigError reports a required field missing before any network call.
// Configuration errors are never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid collector config: %s %s", e.Field, e.Reason)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
