package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Roster   RosterConfig   `yaml:"roster"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	APIKeyHash   string        `yaml:"api_key_hash"` // bcrypt hash; empty disables auth
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	SampleSize   int           `yaml:"sample_size"` // recipient IDs returned by preview
}

// BackendConfig points at the platform REST API that owns clients and campaigns
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// RosterConfig contains roster snapshot settings
type RosterConfig struct {
	SnapshotPath    string        `yaml:"snapshot_path"`
	RefreshInterval time.Duration `yaml:"refresh_interval"` // 0 disables background refresh
	Workspaces      []string      `yaml:"workspaces"`       // refreshed in the background
}

// DatabaseConfig contains submission ledger settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	ListenAddr     string   `yaml:"listen_addr"`     // Default: :9090
	Path           string   `yaml:"path"`            // Default: /metrics
	AllowedIPs     []string `yaml:"allowed_ips"`     // IP addresses/CIDRs allowed to access metrics
	TrustedProxies []string `yaml:"trusted_proxies"` // peers whose X-Forwarded-For/X-Real-IP are believed
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.SampleSize == 0 {
		c.Server.SampleSize = 20
	}

	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}

	if c.Roster.SnapshotPath == "" {
		c.Roster.SnapshotPath = "/var/lib/audience/rosters.db"
	}

	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/audience/app.db"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL: %s", c.Backend.BaseURL)
	}

	if c.Server.SampleSize < 0 {
		return fmt.Errorf("server.sample_size must not be negative")
	}
	if c.Server.APIKeyHash != "" && !strings.HasPrefix(c.Server.APIKeyHash, "$2") {
		return fmt.Errorf("server.api_key_hash must be a bcrypt hash")
	}

	if c.Roster.RefreshInterval < 0 {
		return fmt.Errorf("roster.refresh_interval must not be negative")
	}
	if c.Roster.RefreshInterval > 0 && c.Roster.RefreshInterval < time.Minute {
		return fmt.Errorf("roster.refresh_interval must be at least 1m")
	}
	for _, ws := range c.Roster.Workspaces {
		if strings.TrimSpace(ws) == "" {
			return fmt.Errorf("roster.workspaces must not contain empty entries")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}

// AuthEnabled reports whether API requests must carry a key
func (c *Config) AuthEnabled() bool {
	return c.Server.APIKeyHash != ""
}
