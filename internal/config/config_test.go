package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9100"
  api_key_hash: "$2a$10$abcdefghijklmnopqrstuv"
  sample_size: 5

backend:
  base_url: "https://crm.example.com/"
  api_key: "backend-key"
  timeout: 10s

roster:
  snapshot_path: "/tmp/rosters.db"
  refresh_interval: 15m
  workspaces:
    - "ws-1"
    - "ws-2"

database:
  path: "/tmp/app.db"

metrics:
  enabled: true
  allowed_ips:
    - "10.0.0.0/8"
  trusted_proxies:
    - "127.0.0.1"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9100" {
		t.Errorf("Server.ListenAddr = %v, want :9100", cfg.Server.ListenAddr)
	}
	if cfg.Server.SampleSize != 5 {
		t.Errorf("Server.SampleSize = %v, want 5", cfg.Server.SampleSize)
	}
	if !cfg.AuthEnabled() {
		t.Error("AuthEnabled() = false, want true")
	}
	if cfg.Backend.BaseURL != "https://crm.example.com" {
		t.Errorf("Backend.BaseURL = %v, want trailing slash trimmed", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want 10s", cfg.Backend.Timeout)
	}
	if cfg.Roster.RefreshInterval != 15*time.Minute {
		t.Errorf("Roster.RefreshInterval = %v, want 15m", cfg.Roster.RefreshInterval)
	}
	if len(cfg.Roster.Workspaces) != 2 {
		t.Errorf("len(Roster.Workspaces) = %d, want 2", len(cfg.Roster.Workspaces))
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if len(cfg.Metrics.TrustedProxies) != 1 {
		t.Errorf("len(Metrics.TrustedProxies) = %d, want 1", len(cfg.Metrics.TrustedProxies))
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %v, want text", cfg.Logging.Format)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
backend:
  base_url: "http://localhost:3000"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("Server.ListenAddr = %v, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Server.SampleSize != 20 {
		t.Errorf("Server.SampleSize = %v, want 20", cfg.Server.SampleSize)
	}
	if cfg.AuthEnabled() {
		t.Error("AuthEnabled() = true, want false")
	}
	if cfg.Backend.Timeout != 30*time.Second {
		t.Errorf("Backend.Timeout = %v, want 30s", cfg.Backend.Timeout)
	}
	if cfg.Roster.SnapshotPath != "/var/lib/audience/rosters.db" {
		t.Errorf("Roster.SnapshotPath = %v", cfg.Roster.SnapshotPath)
	}
	if cfg.Roster.RefreshInterval != 0 {
		t.Errorf("Roster.RefreshInterval = %v, want 0", cfg.Roster.RefreshInterval)
	}
	if cfg.Database.Path != "/var/lib/audience/app.db" {
		t.Errorf("Database.Path = %v", cfg.Database.Path)
	}
	if cfg.Metrics.ListenAddr != ":9090" {
		t.Errorf("Metrics.ListenAddr = %v, want :9090", cfg.Metrics.ListenAddr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Backend: BackendConfig{BaseURL: "https://crm.example.com"},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing backend url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "relative backend url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "crm.example.com/api" },
			wantErr: true,
		},
		{
			name:    "plaintext api key",
			mutate:  func(c *Config) { c.Server.APIKeyHash = "secret" },
			wantErr: true,
		},
		{
			name:    "negative sample size",
			mutate:  func(c *Config) { c.Server.SampleSize = -1 },
			wantErr: true,
		},
		{
			name:    "refresh interval too short",
			mutate:  func(c *Config) { c.Roster.RefreshInterval = 5 * time.Second },
			wantErr: true,
		},
		{
			name:    "empty workspace",
			mutate:  func(c *Config) { c.Roster.Workspaces = []string{"ws-1", " "} },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
