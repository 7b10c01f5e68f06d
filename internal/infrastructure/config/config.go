// Package config provides configuration structs and utilities for ppesync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config represents the root configuration for ppesync.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Remote        RemoteConfig        `yaml:"remote"`
	Sync          SyncConfig          `yaml:"sync"`
	Connectivity  ConnectivityConfig  `yaml:"connectivity"`
	Bridge        BridgeConfig        `yaml:"bridge"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig holds configuration for the durable action store.
type StoreConfig struct {
	Path        string        `yaml:"path"`         // SQLite database file
	BusyTimeout time.Duration `yaml:"busy_timeout"` // 0 uses the driver default
}

// RemoteConfig selects and configures the remote record store.
type RemoteConfig struct {
	Backend  string         `yaml:"backend"` // rest, postgres
	REST     RESTConfig     `yaml:"rest"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RESTConfig holds configuration for the PostgREST-style HTTP backend.
type RESTConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key,omitempty"`
	APIKeyEncrypted string        `yaml:"api_key_encrypted,omitempty"` // Preferred over api_key when set
	Timeout         time.Duration `yaml:"timeout"`
}

// PostgresConfig holds configuration for the direct PostgreSQL backend.
type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// SyncConfig holds configuration for the sync engine.
type SyncConfig struct {
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`       // Delay before an automatic retry pass
	TriggerDelay     time.Duration `yaml:"trigger_delay"`     // Delay between queueing and the drain it triggers
	PeriodicSchedule string        `yaml:"periodic_schedule"` // cron spec, empty disables
}

// ConnectivityConfig holds configuration for the connectivity monitor.
type ConnectivityConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	ReconnectWindow time.Duration `yaml:"reconnect_window"` // How long WasOffline stays set after reconnecting
}

// BridgeConfig holds configuration for background sync message sources.
type BridgeConfig struct {
	Enabled       bool   `yaml:"enabled"`
	InboxDir      string `yaml:"inbox_dir"`      // Watched for *.json messages, empty disables
	WebSocketAddr string `yaml:"websocket_addr"` // Listen address, empty disables
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultStorePath     = "~/.ppesync/actions.db"
	DefaultRemoteBackend = "rest"
	DefaultRESTBaseURL   = "http://localhost:54321"
	DefaultTimeout       = 15 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"

	// Sync defaults
	DefaultMaxRetryAttempts = 3
	DefaultRetryDelay       = 5 * time.Second
	DefaultTriggerDelay     = 100 * time.Millisecond
	DefaultPeriodicSchedule = "@every 30s"

	// Connectivity defaults
	DefaultPollInterval    = 10 * time.Second
	DefaultProbeTimeout    = 3 * time.Second
	DefaultReconnectWindow = 10 * time.Second

	// Bridge defaults
	DefaultBridgeEnabled  = true
	DefaultBridgeInboxDir = "~/.ppesync/inbox"

	// Observability defaults
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "ppesync"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid remote backends.
var validBackends = map[string]bool{
	"rest":     true,
	"postgres": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Remote: RemoteConfig{
			Backend: DefaultRemoteBackend,
			REST: RESTConfig{
				BaseURL: DefaultRESTBaseURL,
				Timeout: DefaultTimeout,
			},
			Postgres: PostgresConfig{
				Timeout: DefaultTimeout,
			},
		},
		Sync: SyncConfig{
			MaxRetryAttempts: DefaultMaxRetryAttempts,
			RetryDelay:       DefaultRetryDelay,
			TriggerDelay:     DefaultTriggerDelay,
			PeriodicSchedule: DefaultPeriodicSchedule,
		},
		Connectivity: ConnectivityConfig{
			PollInterval:    DefaultPollInterval,
			ProbeTimeout:    DefaultProbeTimeout,
			ReconnectWindow: DefaultReconnectWindow,
		},
		Bridge: BridgeConfig{
			Enabled:  DefaultBridgeEnabled,
			InboxDir: DefaultBridgeInboxDir,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}

	if err := c.Connectivity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("connectivity: %w", err))
	}

	if err := c.Bridge.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bridge: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the StoreConfig is valid.
func (s *StoreConfig) Validate() error {
	if s.Path == "" {
		return errors.New("path is required")
	}
	if s.BusyTimeout < 0 {
		return errors.New("busy_timeout cannot be negative")
	}
	return nil
}

// Validate checks if the RemoteConfig is valid. Only the selected backend is checked.
func (r *RemoteConfig) Validate() error {
	if !validBackends[r.Backend] {
		return fmt.Errorf("invalid backend %q: must be one of rest, postgres", r.Backend)
	}

	switch r.Backend {
	case "postgres":
		return r.Postgres.Validate()
	default:
		return r.REST.Validate()
	}
}

// Validate checks if the RESTConfig is valid.
func (c *RESTConfig) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("rest: base_url is required"))
	} else {
		parsedURL, err := url.Parse(c.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("rest: invalid base_url: %w", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, errors.New("rest: base_url must use http or https scheme"))
		}
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.New("rest: timeout must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the PostgresConfig is valid.
func (c *PostgresConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DSN) == "" {
		errs = append(errs, errors.New("postgres: dsn is required"))
	}

	if c.Timeout < 0 {
		errs = append(errs, errors.New("postgres: timeout must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.MaxRetryAttempts <= 0 {
		errs = append(errs, errors.New("max_retry_attempts must be positive"))
	}
	if s.RetryDelay <= 0 {
		errs = append(errs, errors.New("retry_delay must be positive"))
	}
	if s.TriggerDelay < 0 {
		errs = append(errs, errors.New("trigger_delay must be non-negative"))
	}
	if s.PeriodicSchedule != "" {
		if _, err := cron.ParseStandard(s.PeriodicSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid periodic_schedule %q: %w", s.PeriodicSchedule, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ConnectivityConfig is valid.
func (c *ConnectivityConfig) Validate() error {
	var errs []error

	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll_interval must be non-negative"))
	}
	if c.ProbeTimeout < 0 {
		errs = append(errs, errors.New("probe_timeout must be non-negative"))
	}
	if c.ReconnectWindow <= 0 {
		errs = append(errs, errors.New("reconnect_window must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the BridgeConfig is valid.
func (b *BridgeConfig) Validate() error {
	if b.Enabled && b.InboxDir == "" && b.WebSocketAddr == "" {
		return errors.New("inbox_dir or websocket_addr is required when enabled")
	}
	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	if err := o.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}
