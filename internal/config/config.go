// Package config handles loading and validating Sindano configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Sindano.
type Config struct {
	Workspace     string               `yaml:"workspace,omitempty"`     // Runtime root. Default: ~/.sindano/workspace. Override: SINDANO_WORKSPACE.
	Storage       *StorageConfig       `yaml:"storage,omitempty"`       // nil = filesystem document source, no audit trail.
	Engine        EngineConfig         `yaml:"engine"`                  // Pipeline and sandbox defaults.
	Observability *ObservabilityConfig `yaml:"observability,omitempty"` // nil = observability disabled.
	Scheduler     *SchedulerConfig     `yaml:"scheduler,omitempty"`     // nil = scheduled batches disabled.
}

// EngineConfig holds pipeline and sandbox defaults.
type EngineConfig struct {
	DefaultTimeoutMs int `yaml:"default_timeout_ms"` // Sandbox bound when the spec sets none. Default: 5000.
	MaxOutputKB      int `yaml:"max_output_kb"`      // Console output cap. Default: 1024.
}

// DefaultTimeout returns the configured sandbox bound.
func (e EngineConfig) DefaultTimeout() time.Duration {
	if e.DefaultTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.DefaultTimeoutMs) * time.Millisecond
}

// MaxOutputBytes returns the console output cap in bytes.
func (e EngineConfig) MaxOutputBytes() int {
	if e.MaxOutputKB <= 0 {
		return 1 << 20
	}
	return e.MaxOutputKB * 1024
}

// StorageConfig configures the persistence backend.
// When nil, documents come from the workspace documents directory and no
// audit records are persisted.
type StorageConfig struct {
	Driver   string                 `yaml:"driver"`             // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `yaml:"sqlite,omitempty"`   // SQLite-specific settings.
	Postgres *PostgresStorageConfig `yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `yaml:"path,omitempty"` // Database file path. Default: derived from workspace.
	JournalMode string `yaml:"journal_mode"`   // "wal" (default).
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `yaml:"dsn"` // Override: SINDANO_DB_DSN env var.
	MaxOpenConns     int    `yaml:"max_open_conns"`
	MaxIdleConns     int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `yaml:"conn_max_lifetime_s"`
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
	Tracing *TracingConfig `yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig configures OpenTelemetry tracing with an OTLP exporter.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP collector endpoint.
	Protocol    string  `yaml:"protocol"`     // "grpc" (default) or "http".
	Insecure    bool    `yaml:"insecure"`     // Disable TLS for the exporter.
	SampleRate  float64 `yaml:"sample_rate"`  // 0 < rate <= 1. Default: 1.0.
	ServiceName string  `yaml:"service_name"` // Default: "sindano".
}

// SchedulerConfig declares recurring batch patch runs.
type SchedulerConfig struct {
	Jobs []BatchJobConfig `yaml:"jobs"`
}

// BatchJobConfig is one recurring batch run.
type BatchJobConfig struct {
	Name      string   `yaml:"name"`
	Schedule  string   `yaml:"schedule"`  // Standard 5-field cron expression.
	Documents []string `yaml:"documents"` // Identities to process each run.
	SpecFile  string   `yaml:"spec_file"` // PatchSpec YAML path.
}

// Load reads a config file and applies environment overrides. An empty path
// or missing file yields defaults — Sindano is usable with zero config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("SINDANO_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if dsn := os.Getenv("SINDANO_DB_DSN"); dsn != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = dsn
	}
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Storage != nil {
		switch driver := c.Storage.StorageDriver(); driver {
		case "sqlite":
			// Path is derived from the workspace when unset.
		case "postgres":
			if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
				return fmt.Errorf("storage driver is postgres but no DSN is configured")
			}
		default:
			return fmt.Errorf("unknown storage driver %q (want sqlite or postgres)", driver)
		}
	}

	if c.Scheduler != nil {
		for i, job := range c.Scheduler.Jobs {
			if job.Name == "" {
				return fmt.Errorf("scheduler job %d: name is required", i)
			}
			if job.Schedule == "" {
				return fmt.Errorf("scheduler job %q: schedule is required", job.Name)
			}
			if len(job.Documents) == 0 {
				return fmt.Errorf("scheduler job %q: at least one document identity is required", job.Name)
			}
			if job.SpecFile == "" {
				return fmt.Errorf("scheduler job %q: spec_file is required", job.Name)
			}
		}
	}

	if c.Observability != nil && c.Observability.Tracing != nil {
		tr := c.Observability.Tracing
		if tr.Enabled && tr.Endpoint == "" {
			return fmt.Errorf("tracing enabled but no endpoint configured")
		}
		if tr.SampleRate < 0 || tr.SampleRate > 1 {
			return fmt.Errorf("tracing sample_rate must be within [0, 1], got %v", tr.SampleRate)
		}
	}

	return nil
}
