// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Lock          LockConfig          `yaml:"lock"`
	Version       VersionConfig       `yaml:"version"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Authz         AuthzConfig         `yaml:"authz"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes the operational HTTP listener (health, metrics).
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig describes persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // postgres or memory
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LockConfig describes advisory lock settings.
type LockConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`
	// SweepInterval controls how often lapsed lock rows are reclaimed.
	// Zero disables the sweeper; correctness never depends on it.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// SweepGrace keeps rows around after expiry so an in-flight refresh
	// is never deleted out from under its caller.
	SweepGrace time.Duration `yaml:"sweep_grace"`
}

// VersionConfig describes version engine settings.
type VersionConfig struct {
	// MaxCreateRetries bounds retries when concurrent snapshot creation
	// races on the next version number.
	MaxCreateRetries int `yaml:"max_create_retries"`
	BackupOnRevert   bool `yaml:"backup_on_revert"`
}

// WorkflowConfig describes state machine settings.
type WorkflowConfig struct {
	// SnapshotStatuses lists target statuses whose transitions snapshot
	// the record content first (isMajor).
	SnapshotStatuses []string `yaml:"snapshot_statuses"`
}

// AuthzConfig describes the static role policy.
type AuthzConfig struct {
	PolicyFile string `yaml:"policy_file"`
}

// NotifyConfig describes the async transition notifier.
type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:          "postgres",
			DSNEnv:          "COEDIT_STORE_DSN",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lock: LockConfig{
			DefaultTTL:    30 * time.Minute,
			MaxTTL:        4 * time.Hour,
			SweepInterval: 10 * time.Minute,
			SweepGrace:    1 * time.Hour,
		},
		Version: VersionConfig{
			MaxCreateRetries: 3,
			BackupOnRevert:   true,
		},
		Workflow: WorkflowConfig{
			SnapshotStatuses: []string{"approved", "sent"},
		},
		Notify: NotifyConfig{
			QueueSize: 256,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "memory" {
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (postgres, memory)", c.Store.Driver))
	}
	if c.Lock.DefaultTTL <= 0 {
		errs = append(errs, "lock.default_ttl must be positive")
	}
	if c.Lock.MaxTTL < c.Lock.DefaultTTL {
		errs = append(errs, "lock.max_ttl must be at least lock.default_ttl")
	}
	if c.Version.MaxCreateRetries < 1 {
		errs = append(errs, "version.max_create_retries must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads COEDIT_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COEDIT_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("COEDIT_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("COEDIT_LOCK_DEFAULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Lock.DefaultTTL = d
		}
	}
	if v := os.Getenv("COEDIT_AUTHZ_POLICY_FILE"); v != "" {
		cfg.Authz.PolicyFile = v
	}
	if v := os.Getenv("COEDIT_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
