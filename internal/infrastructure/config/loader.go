// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configFileName = "config.yaml"

// EnvHome overrides the configuration directory.
const EnvHome = "PPESYNC_HOME"

// envOverrides maps environment variables onto config fields. They are
// applied after the file is read and before validation.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"PPESYNC_STORE_PATH", func(c *Config, v string) { c.Store.Path = v }},
	{"PPESYNC_BACKEND", func(c *Config, v string) { c.Remote.Backend = strings.ToLower(v) }},
	{"PPESYNC_REST_URL", func(c *Config, v string) { c.Remote.REST.BaseURL = v }},
	{"PPESYNC_API_KEY", func(c *Config, v string) {
		c.Remote.REST.APIKey = v
		c.Remote.REST.APIKeyEncrypted = ""
	}},
	{"PPESYNC_POSTGRES_DSN", func(c *Config, v string) { c.Remote.Postgres.DSN = v }},
	{"PPESYNC_LOG_LEVEL", func(c *Config, v string) { c.Logging.Level = strings.ToLower(v) }},
}

// Loader reads and writes config.yaml under a configuration directory.
type Loader struct {
	configDir string
	lookupEnv func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLookupEnv replaces os.LookupEnv as the source of overrides.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookupEnv = fn }
}

// NewLoader creates a loader for configDir. An empty configDir resolves to
// $PPESYNC_HOME, then ~/.ppesync.
func NewLoader(configDir string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{configDir: configDir, lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}

	if l.configDir == "" {
		if home, ok := l.lookupEnv(EnvHome); ok && home != "" {
			l.configDir = home
		} else {
			userHome, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			l.configDir = filepath.Join(userHome, ".ppesync")
		}
	}
	return l, nil
}

// Load reads path, or the default config file when path is empty. A missing
// default file yields the defaults; a missing explicit path is an error.
// Environment overrides apply in both cases.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = l.DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("config file not found: %s", path)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, o := range envOverrides {
		if v, ok := l.lookupEnv(o.name); ok && v != "" {
			o.apply(cfg, v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

const fileHeader = `# ppesync configuration
# Durations use Go syntax (5s, 100ms). periodic_schedule accepts cron specs and @every.
# PPESYNC_* environment variables override store, remote and logging settings.

`

// Save validates cfg and writes it to path, or the default config file when
// path is empty. The file is replaced atomically with mode 0600.
func (l *Loader) Save(cfg *Config, path string) error {
	if path == "" {
		path = l.DefaultConfigPath()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(fileHeader + string(data)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigDir returns the configuration directory.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the config file inside ConfigDir.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, configFileName)
}
