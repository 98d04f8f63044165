package provider

import (
	"fmt"
	"sort"

	"github.com/optiscale/pulse/internal/config"
)

// IntegrationType distinguishes providers with a dedicated vendor
// integration from those monitored through the generic adapter.
type IntegrationType string

const (
	IntegrationGeneric   IntegrationType = "generic"
	IntegrationDedicated IntegrationType = "dedicated"
)

// Metadata describes one provider: how it is integrated, which credential
// fields a customer must supply, and where missing fields fall back to in
// the environment. The table is loaded once at startup and read-only
// afterwards.
type Metadata struct {
	Slug            string
	DisplayName     string
	IntegrationType IntegrationType
	Enabled         bool
	DataTypes       []string
	PrometheusURL   string
	ScrapeURL       string
	RequiredFields  []string
	EnvFallbacks    map[string]string
}

// builtinProviders seeds the registry with the providers the reference
// deployment knows about. Config entries with the same slug override them.
var builtinProviders = []Metadata{
	{
		Slug:            "runpod",
		DisplayName:     "RunPod",
		IntegrationType: IntegrationGeneric,
		Enabled:         false,
		DataTypes:       []string{"performance", "resource", "application", "cost", "gpu"},
		RequiredFields:  []string{"prometheus_url"},
		EnvFallbacks: map[string]string{
			"prometheus_url": "RUNPOD_PROMETHEUS_URL",
			"scrape_url":     "RUNPOD_DCGM_URL",
			"vendor_api_key": "RUNPOD_API_KEY",
		},
	},
	{
		Slug:            "coreweave",
		DisplayName:     "CoreWeave",
		IntegrationType: IntegrationGeneric,
		Enabled:         false,
		DataTypes:       []string{"performance", "resource", "gpu"},
		RequiredFields:  []string{"prometheus_url"},
		EnvFallbacks: map[string]string{
			"prometheus_url": "COREWEAVE_PROMETHEUS_URL",
			"scrape_url":     "COREWEAVE_DCGM_URL",
		},
	},
	{
		Slug:            "selfhosted",
		DisplayName:     "Self-hosted cluster",
		IntegrationType: IntegrationGeneric,
		Enabled:         false,
		DataTypes:       []string{"performance", "resource", "application", "gpu"},
		RequiredFields:  []string{"prometheus_url"},
		EnvFallbacks: map[string]string{
			"prometheus_url": "SELFHOSTED_PROMETHEUS_URL",
			"scrape_url":     "SELFHOSTED_DCGM_URL",
		},
	},
	{
		Slug:            "aws",
		DisplayName:     "Amazon Web Services",
		IntegrationType: IntegrationDedicated,
		Enabled:         false,
		DataTypes:       []string{"cost", "resource"},
		RequiredFields:  []string{"access_key_id", "secret_access_key"},
	},
	{
		Slug:            "gcp",
		DisplayName:     "Google Cloud",
		IntegrationType: IntegrationDedicated,
		Enabled:         false,
		DataTypes:       []string{"cost", "resource"},
		RequiredFields:  []string{"service_account_json"},
	},
	{
		Slug:            "azure",
		DisplayName:     "Microsoft Azure",
		IntegrationType: IntegrationDedicated,
		Enabled:         false,
		DataTypes:       []string{"cost", "resource"},
		RequiredFields:  []string{"tenant_id", "client_id", "client_secret"},
	},
}

// Registry holds the provider metadata table.
type Registry struct {
	providers map[string]Metadata
}

// NewRegistry builds the metadata table from the builtin defaults with
// config entries layered on top.
func NewRegistry(configured []config.Provider) *Registry {
	providers := make(map[string]Metadata, len(builtinProviders)+len(configured))
	for _, m := range builtinProviders {
		providers[m.Slug] = m
	}
	for _, p := range configured {
		m := Metadata{
			Slug:            p.Slug,
			DisplayName:     p.DisplayName,
			IntegrationType: IntegrationType(p.IntegrationType),
			Enabled:         p.Enabled,
			DataTypes:       p.DataTypes,
			PrometheusURL:   p.PrometheusURL,
			ScrapeURL:       p.ScrapeURL,
			RequiredFields:  p.RequiredFields,
			EnvFallbacks:    p.EnvFallbacks,
		}
		if m.IntegrationType == "" {
			m.IntegrationType = IntegrationGeneric
		}
		if m.DisplayName == "" {
			m.DisplayName = m.Slug
		}
		if len(m.DataTypes) == 0 {
			if builtin, ok := providers[m.Slug]; ok {
				m.DataTypes = builtin.DataTypes
			} else {
				m.DataTypes = []string{"performance", "resource"}
			}
		}
		if len(m.RequiredFields) == 0 && m.IntegrationType == IntegrationGeneric && m.PrometheusURL == "" {
			m.RequiredFields = []string{"prometheus_url"}
		}
		if m.EnvFallbacks == nil {
			if builtin, ok := providers[m.Slug]; ok {
				m.EnvFallbacks = builtin.EnvFallbacks
			}
		}
		providers[m.Slug] = m
	}
	return &Registry{providers: providers}
}

// Lookup returns the metadata for a provider slug.
func (r *Registry) Lookup(slug string) (Metadata, error) {
	m, ok := r.providers[slug]
	if !ok {
		return Metadata{}, fmt.Errorf("unknown provider %q", slug)
	}
	return m, nil
}

// Enabled returns every enabled provider, sorted by slug for a stable
// scheduling order.
func (r *Registry) Enabled() []Metadata {
	var out []Metadata
	for _, m := range r.providers {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
