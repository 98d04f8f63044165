package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: pulse\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pulse", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.JobTimeout)
	assert.Equal(t, 25*time.Minute, cfg.Scheduler.SoftTimeout)
	assert.Equal(t, 30*time.Second, cfg.Collector.Timeout)
	assert.Equal(t, 3, cfg.Collector.RetryAttempts)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: pulse
  env: production
  version: 1.2.3

server:
  port: 9090
  read_timeout: 15s
  write_timeout: 15s

store:
  path: /var/lib/pulse/pulse.duckdb
  query_timeout: 5s

audit:
  enabled: true
  host: db.internal
  port: 5433
  user: pulse
  dbname: pulse_audit
  sslmode: require

notify:
  publish_url: http://events:8081/publish
  timeout: 5s

scheduler:
  interval: 5m
  retry_delay: 30s
  max_retries: 2

providers:
  - slug: runpod
    enabled: true
  - slug: lambda
    display_name: Lambda Labs
    enabled: true
    prometheus_url: http://lambda-prom:9090

customers:
  - id: acme
    active: true
    providers:
      - provider: runpod
        hourly_rate: 2.49
        instance_id: pod-7f3a
        pod_start_time: "2026-08-01T00:00:00Z"
        credentials:
          prometheus_url: https://metrics.example/prom
  - id: dormant
    active: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/pulse/pulse.duckdb", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.QueryTimeout)

	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "db.internal", cfg.Audit.Host)
	assert.Equal(t, 5433, cfg.Audit.Port)

	assert.Equal(t, "http://events:8081/publish", cfg.Notify.PublishURL)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.RetryDelay)
	assert.Equal(t, 2, cfg.Scheduler.MaxRetries)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "runpod", cfg.Providers[0].Slug)
	assert.True(t, cfg.Providers[0].Enabled)
	assert.Equal(t, "Lambda Labs", cfg.Providers[1].DisplayName)
	assert.Equal(t, "http://lambda-prom:9090", cfg.Providers[1].PrometheusURL)

	require.Len(t, cfg.Customers, 2)
	acme := cfg.Customers[0]
	assert.Equal(t, "acme", acme.ID)
	assert.True(t, acme.Active)
	require.Len(t, acme.Providers, 1)
	assert.Equal(t, 2.49, acme.Providers[0].HourlyRate)
	assert.Equal(t, "pod-7f3a", acme.Providers[0].InstanceID)
	assert.Equal(t, "https://metrics.example/prom", acme.Providers[0].Credentials["prometheus_url"])
	assert.False(t, cfg.Customers[1].Active)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PULSE_SERVER_PORT", "7070")
	t.Setenv("PULSE_LOG_LEVEL", "debug")

	path := writeConfig(t, "app:\n  name: pulse\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}
