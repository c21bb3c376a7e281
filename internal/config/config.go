// Package config loads daemon configuration with precedence
// defaults → YAML file → environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Sync     SyncConfig     `yaml:"sync"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains durable queue settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// UpstreamConfig describes the municipal portal this edge fronts.
type UpstreamConfig struct {
	BaseURL         string   `yaml:"base_url"`
	CSRFToken       string   `yaml:"-"` // env-only, never in YAML
	Timeout         Duration `yaml:"timeout"`
	SubmissionPaths []string `yaml:"submission_paths"`
}

// CacheConfig contains offline page and asset cache settings.
type CacheConfig struct {
	Path           string   `yaml:"path"`
	Generation     string   `yaml:"generation"`
	OfflineURL     string   `yaml:"offline_url"`
	PrecacheURLs   []string `yaml:"precache_urls"`
	StaticPrefixes []string `yaml:"static_prefixes"`
	APIPrefixes    []string `yaml:"api_prefixes"`
}

// SyncConfig contains queue replay settings.
type SyncConfig struct {
	Interval Duration `yaml:"interval"`
}

// MonitorConfig contains connectivity probe settings.
type MonitorConfig struct {
	ProbeURL     string   `yaml:"probe_url"`
	Interval     Duration `yaml:"interval"`
	ProbeTimeout Duration `yaml:"probe_timeout"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("AGEO_EDGE_CONFIG_PATH", "config/ageo-edge.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values. The sync interval
// matches the portal UI's 30-second replay cadence.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/ageo-edge.db",
		},
		Upstream: UpstreamConfig{
			Timeout: Duration(30 * time.Second),
			SubmissionPaths: []string{
				"/ageo/intData/",
				"/ageo/soliData/",
				"/ageo/fotos/",
			},
		},
		Cache: CacheConfig{
			Path:       "data/cache",
			Generation: "ageo-v1",
			OfflineURL: "/ageo/offline/",
			PrecacheURLs: []string{
				"/ageo/",
				"/ageo/offline/",
			},
			StaticPrefixes: []string{"/static/", "/media/"},
			APIPrefixes:    []string{"/api/", "/ageo/geocode/", "/ageo/reverse-geocode/"},
		},
		Sync: SyncConfig{
			Interval: Duration(30 * time.Second),
		},
		Monitor: MonitorConfig{
			Interval:     Duration(10 * time.Second),
			ProbeTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("AGEO_EDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGEO_EDGE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("AGEO_EDGE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("AGEO_EDGE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database
	if v := os.Getenv("AGEO_EDGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Upstream
	if v := os.Getenv("AGEO_EDGE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("AGEO_EDGE_CSRF_TOKEN"); v != "" {
		cfg.Upstream.CSRFToken = v
	}
	if v := os.Getenv("AGEO_EDGE_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.Timeout = Duration(d)
		}
	}

	// Cache
	if v := os.Getenv("AGEO_EDGE_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("AGEO_EDGE_CACHE_GENERATION"); v != "" {
		cfg.Cache.Generation = v
	}

	// Sync
	if v := os.Getenv("AGEO_EDGE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration(d)
		}
	}

	// Monitor
	if v := os.Getenv("AGEO_EDGE_PROBE_URL"); v != "" {
		cfg.Monitor.ProbeURL = v
	}
	if v := os.Getenv("AGEO_EDGE_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = Duration(d)
		}
	}

	// Auth
	if v := os.Getenv("AGEO_EDGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("AGEO_EDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AGEO_EDGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
func (c *Config) validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required (or AGEO_EDGE_UPSTREAM_URL)")
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("upstream.base_url %q must be an http(s) URL", c.Upstream.BaseURL)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// GetProbeURL returns the connectivity probe target, defaulting to the
// portal base URL when none is configured.
func (c *Config) GetProbeURL() string {
	if c.Monitor.ProbeURL != "" {
		return c.Monitor.ProbeURL
	}
	return c.Upstream.BaseURL + "/ageo/"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
