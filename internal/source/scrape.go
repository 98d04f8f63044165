package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/record"
)

// ScrapeClient fetches newline-delimited exposition text (DCGM/Prometheus
// scrape format) from a provider's scrape endpoint.
type ScrapeClient struct {
	logger     zerolog.Logger
	url        string
	httpClient *http.Client
}

// NewScrapeClient creates a scrape-and-parse client for the given endpoint.
func NewScrapeClient(logger zerolog.Logger, url string, timeout time.Duration) *ScrapeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScrapeClient{
		logger:     logger.With().Str("component", "scrape").Logger(),
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the exposition text and returns a metric name -> value
// map of every parseable sample line.
func (c *ScrapeClient) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Endpoint: c.url, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{Endpoint: c.url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}

	return ParseExposition(string(body)), nil
}

// ParseExposition parses exposition text into a metric name -> value map.
// Each sample line is `metric_name{labels} value [timestamp]`; comments and
// blank lines are skipped, and lines whose trailing token is not numeric
// are ignored rather than treated as errors.
func ParseExposition(text string) map[string]float64 {
	samples := make(map[string]float64)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Metric name ends at the label block or the first whitespace.
		name := line
		if i := strings.IndexByte(line, '{'); i >= 0 {
			name = line[:i]
		} else if i := strings.IndexAny(line, " \t"); i >= 0 {
			name = line[:i]
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		value, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			continue
		}
		samples[name] = value
	}
	return samples
}

// gpuGauge maps a DCGM exposition metric name to the resource record it
// produces. Names not in this table are silently ignored.
type gpuGauge struct {
	name string
	unit string
}

var gpuGauges = map[string]gpuGauge{
	"DCGM_FI_DEV_GPU_UTIL":    {name: "gpu_utilization", unit: "percent"},
	"DCGM_FI_DEV_MEM_COPY_UTIL": {name: "gpu_memory_utilization", unit: "percent"},
	"DCGM_FI_DEV_FB_USED":     {name: "gpu_memory_used", unit: "MiB"},
	"DCGM_FI_DEV_FB_FREE":     {name: "gpu_memory_free", unit: "MiB"},
	"DCGM_FI_DEV_GPU_TEMP":    {name: "gpu_temperature", unit: "celsius"},
	"DCGM_FI_DEV_POWER_USAGE": {name: "gpu_power_usage", unit: "watts"},
	"DCGM_FI_DEV_SM_CLOCK":    {name: "gpu_sm_clock", unit: "MHz"},
}

// GPUResourceMetrics converts recognized DCGM gauges into typed resource
// records. An input with zero recognized names yields zero records.
func GPUResourceMetrics(ts time.Time, customerID, provider, instanceID string, samples map[string]float64) []record.ResourceMetric {
	resourceID := instanceID
	if resourceID == "" {
		resourceID = provider + "-gpu"
	}

	var out []record.ResourceMetric
	// Iterate the gauge table, not the samples, for deterministic output order.
	for _, raw := range []string{
		"DCGM_FI_DEV_GPU_UTIL",
		"DCGM_FI_DEV_MEM_COPY_UTIL",
		"DCGM_FI_DEV_FB_USED",
		"DCGM_FI_DEV_FB_FREE",
		"DCGM_FI_DEV_GPU_TEMP",
		"DCGM_FI_DEV_POWER_USAGE",
		"DCGM_FI_DEV_SM_CLOCK",
	} {
		value, ok := samples[raw]
		if !ok {
			continue
		}
		gauge := gpuGauges[raw]
		out = append(out, record.ResourceMetric{
			Timestamp:    ts,
			CustomerID:   customerID,
			Provider:     provider,
			ResourceID:   resourceID,
			ResourceName: gauge.name,
			ResourceType: "gpu",
			Status:       "active",
			Utilization:  value,
			Unit:         gauge.unit,
			Metadata: map[string]string{
				"source":        "dcgm",
				"source_metric": raw,
			},
		})
	}
	return out
}
