package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Collector CollectorConfig `mapstructure:"collector"`
	Providers []Provider      `mapstructure:"providers"`
	Customers []Customer      `mapstructure:"customers"`
}

// AppConfig holds application identity configuration
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds columnar metrics store configuration.
// An empty path opens an in-memory DuckDB database.
type StoreConfig struct {
	Path         string        `mapstructure:"path"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// AuditConfig holds the collection-history database configuration
type AuditConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// NotifyConfig holds the completion-event publisher configuration.
// An empty publish URL disables event publishing.
type NotifyConfig struct {
	PublishURL string        `mapstructure:"publish_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds the periodic collection driver configuration
type SchedulerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	MaxRetries  int           `mapstructure:"max_retries"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	SoftTimeout time.Duration `mapstructure:"soft_timeout"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
}

// CollectorConfig holds per-source fetch defaults for the generic adapter
type CollectorConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// Provider describes one compute provider the scheduler collects from
type Provider struct {
	Slug            string            `mapstructure:"slug"`
	DisplayName     string            `mapstructure:"display_name"`
	IntegrationType string            `mapstructure:"integration_type"`
	Enabled         bool              `mapstructure:"enabled"`
	DataTypes       []string          `mapstructure:"data_types"`
	PrometheusURL   string            `mapstructure:"prometheus_url"`
	ScrapeURL       string            `mapstructure:"scrape_url"`
	RequiredFields  []string          `mapstructure:"required_fields"`
	EnvFallbacks    map[string]string `mapstructure:"env_fallbacks"`
}

// Customer describes one customer and its stored provider credentials
type Customer struct {
	ID        string             `mapstructure:"id"`
	Active    bool               `mapstructure:"active"`
	Providers []CustomerProvider `mapstructure:"providers"`
}

// CustomerProvider holds one customer's stored configuration for a provider.
// Credentials override the provider's environment fallbacks field by field.
type CustomerProvider struct {
	Provider     string            `mapstructure:"provider"`
	Credentials  map[string]string `mapstructure:"credentials"`
	HourlyRate   float64           `mapstructure:"hourly_rate"`
	InstanceID   string            `mapstructure:"instance_id"`
	PodStartTime string            `mapstructure:"pod_start_time"`
}

// Load loads configuration from file and environment variables.
// If configPath is provided, it will be used to load the configuration from
// that specific file. Otherwise it looks for config.yaml in standard locations.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("PULSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	err := v.ReadInConfig()
	if err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// For default config paths, it's okay if no config file is found.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for the configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pulse")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.version", "0.1.0")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.path", "data/pulse.duckdb")
	v.SetDefault("store.query_timeout", 30*time.Second)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.host", "localhost")
	v.SetDefault("audit.port", 5432)
	v.SetDefault("audit.user", "pulse")
	v.SetDefault("audit.password", "")
	v.SetDefault("audit.dbname", "pulse")
	v.SetDefault("audit.sslmode", "disable")

	v.SetDefault("notify.publish_url", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("scheduler.interval", 15*time.Minute)
	v.SetDefault("scheduler.retry_delay", 60*time.Second)
	v.SetDefault("scheduler.max_retries", 3)
	v.SetDefault("scheduler.job_timeout", 30*time.Minute)
	v.SetDefault("scheduler.soft_timeout", 25*time.Minute)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.queue_size", 256)

	v.SetDefault("collector.timeout", 30*time.Second)
	v.SetDefault("collector.retry_attempts", 3)
}
