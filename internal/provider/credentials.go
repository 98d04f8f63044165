package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/optiscale/pulse/internal/config"
)

// Credential field names shared between the customer store and the
// environment fallback table.
const (
	FieldPrometheusURL = "prometheus_url"
	FieldScrapeURL     = "scrape_url"
	FieldVendorAPIURL  = "vendor_api_url"
	FieldVendorAPIKey  = "vendor_api_key"
)

// CustomerCredentials is one customer's stored configuration for a
// provider, as returned by a CredentialSource.
type CustomerCredentials struct {
	Fields       map[string]string
	HourlyRate   float64
	InstanceID   string
	PodStartTime time.Time
}

// CredentialSource resolves a customer's stored credentials for a
// provider. Lookups are read-only and happen fresh on every collection
// run so rotated keys take effect without a restart.
type CredentialSource interface {
	Credentials(ctx context.Context, customerID, providerSlug string) (CustomerCredentials, error)
}

// ConfigCredentialSource serves credentials from the static customer
// section of the config file. It stands in for the relational credential
// store, which is outside this service.
type ConfigCredentialSource struct {
	customers []config.Customer
}

func NewConfigCredentialSource(customers []config.Customer) *ConfigCredentialSource {
	return &ConfigCredentialSource{customers: customers}
}

// Credentials implements CredentialSource.
func (s *ConfigCredentialSource) Credentials(ctx context.Context, customerID, providerSlug string) (CustomerCredentials, error) {
	for _, c := range s.customers {
		if c.ID != customerID {
			continue
		}
		for _, p := range c.Providers {
			if p.Provider != providerSlug {
				continue
			}
			creds := CustomerCredentials{
				Fields:     p.Credentials,
				HourlyRate: p.HourlyRate,
				InstanceID: p.InstanceID,
			}
			if p.PodStartTime != "" {
				ts, err := time.Parse(time.RFC3339, p.PodStartTime)
				if err != nil {
					return CustomerCredentials{}, fmt.Errorf("customer %s provider %s: parse pod_start_time: %w", customerID, providerSlug, err)
				}
				creds.PodStartTime = ts
			}
			return creds, nil
		}
		// Customer exists but has nothing stored for this provider; the
		// environment fallback layer may still supply everything needed.
		return CustomerCredentials{}, nil
	}
	return CustomerCredentials{}, fmt.Errorf("unknown customer %q", customerID)
}

// ActiveCustomers returns the IDs of active customers that have the given
// provider configured. Used by the scheduler to enumerate jobs.
func (s *ConfigCredentialSource) ActiveCustomers(ctx context.Context, providerSlug string) ([]string, error) {
	var ids []string
	for _, c := range s.customers {
		if !c.Active {
			continue
		}
		for _, p := range c.Providers {
			if p.Provider == providerSlug {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids, nil
}

// Defaults carries process-wide collector fetch defaults applied when the
// resolved configuration does not override them.
type Defaults struct {
	Timeout       time.Duration
	RetryAttempts int
}

// ResolveConfig builds the CollectorConfig for one run by layering the
// customer's stored credentials over the provider metadata and its
// environment fallbacks, field by field. Required fields missing after
// both layers fail with a ConfigError before any network call.
func ResolveConfig(meta Metadata, creds CustomerCredentials, customerID string, defaults Defaults) (CollectorConfig, error) {
	resolve := func(field, metaValue string) string {
		if v, ok := creds.Fields[field]; ok && v != "" {
			return v
		}
		if metaValue != "" {
			return metaValue
		}
		if env, ok := meta.EnvFallbacks[field]; ok {
			return os.Getenv(env)
		}
		return ""
	}

	cfg := CollectorConfig{
		Provider:      meta.Slug,
		CustomerID:    customerID,
		PrometheusURL: resolve(FieldPrometheusURL, meta.PrometheusURL),
		ScrapeURL:     resolve(FieldScrapeURL, meta.ScrapeURL),
		VendorAPIURL:  resolve(FieldVendorAPIURL, ""),
		VendorAPIKey:  resolve(FieldVendorAPIKey, ""),
		Timeout:       defaults.Timeout,
		RetryAttempts: defaults.RetryAttempts,
		HourlyRate:    creds.HourlyRate,
		InstanceID:    creds.InstanceID,
		PodStartTime:  creds.PodStartTime,
	}

	for _, field := range meta.RequiredFields {
		if resolve(field, metaURLFor(meta, field)) == "" {
			return CollectorConfig{}, &ConfigError{Field: field, Reason: fmt.Sprintf("required by provider %s and not configured", meta.Slug)}
		}
	}

	if err := cfg.Validate(); err != nil {
		return CollectorConfig{}, err
	}
	return cfg, nil
}

func metaURLFor(meta Metadata, field string) string {
	switch field {
	case FieldPrometheusURL:
		return meta.PrometheusURL
	case FieldScrapeURL:
		return meta.ScrapeURL
	default:
		return ""
	}
}
