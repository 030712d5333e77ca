package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/audience/internal/config"
	"github.com/foxzi/audience/internal/metrics"
)

func testConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", SampleSize: 5},
		Backend: config.BackendConfig{
			BaseURL: backendURL,
			Timeout: 5 * time.Second,
		},
		Roster: config.RosterConfig{
			SnapshotPath: filepath.Join(dir, "rosters.db"),
		},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "app.db")},
		Logging:  config.LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestNewWiresComponents(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/clients":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id": 1, "name": "A", "email": "a@x.com", "tags": ["vip"], "status": "customer"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	cfg := testConfig(t, backend.URL)
	a, err := New(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.worker != nil {
		t.Error("worker should not be created without a refresh interval")
	}
	if a.metricsServer != nil {
		t.Error("metrics server should not be created when disabled")
	}

	body := `{"workspace_id": "ws-1", "criteria": {"tags": ["vip"], "channel": "email"}}`
	req := httptest.NewRequest("POST", "/api/v1/audience/preview", strings.NewReader(body))
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Count  int    `json:"count"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode preview: %v", err)
	}
	if resp.Count != 1 || resp.Source != "live" {
		t.Errorf("preview = %+v, want count 1 from live roster", resp)
	}

	// the roster is now available offline
	backend.Close()
	w = httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/audience/tags?workspace_id=ws-1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("tags status after backend shutdown = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestNewOptionalComponents(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Metrics = config.MetricsConfig{Enabled: true, ListenAddr: "127.0.0.1:0", Path: "/metrics"}
	cfg.Roster.RefreshInterval = time.Minute
	cfg.Roster.Workspaces = []string{"ws-1"}
	defer metrics.SetGlobal(nil)

	a, err := New(cfg, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.worker == nil {
		t.Error("worker should be created for configured workspaces")
	}
	if a.metricsServer == nil {
		t.Error("metrics server should be created when enabled")
	}
	if metrics.Global() == nil {
		t.Error("global metrics should be set")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.level); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, out)
	}
	if entry["msg"] != "shown" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}
}
