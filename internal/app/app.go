package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/audience/internal/api"
	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/campaign"
	"github.com/foxzi/audience/internal/config"
	"github.com/foxzi/audience/internal/db"
	"github.com/foxzi/audience/internal/metrics"
	"github.com/foxzi/audience/internal/repository"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/worker"
)

// App is the main application
type App struct {
	config        *config.Config
	snapshots     *roster.BoltStore
	database      *db.DB
	backend       *backend.Client
	loader        *roster.Loader
	campaigns     *campaign.Service
	submissions   *repository.SubmissionRepository
	apiServer     *api.Server
	metricsServer *metrics.Server
	worker        *worker.Worker
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config, version string, logger *slog.Logger) (*App, error) {
	snapshots, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot storage: %w", err)
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		snapshots.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		snapshots.Close()
		database.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		metrics.SetGlobal(metrics.New())
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	loader := roster.NewLoader(client, snapshots, logger)
	submissions := repository.NewSubmissionRepository(database.DB)
	campaigns := campaign.NewService(loader, client, submissions, cfg.Server.SampleSize, logger)

	a := &App{
		config:      cfg,
		snapshots:   snapshots,
		database:    database,
		backend:     client,
		loader:      loader,
		campaigns:   campaigns,
		submissions: submissions,
		apiServer:   api.NewServer(campaigns, submissions, loader, &cfg.Server, version, logger),
		logger:      logger,
	}

	if m := metrics.Global(); m != nil && cfg.Metrics.Enabled {
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, cfg.Metrics.TrustedProxies, logger)
	}

	if cfg.Roster.RefreshInterval > 0 && len(cfg.Roster.Workspaces) > 0 {
		a.worker = worker.New(loader, worker.Config{
			Workspaces: cfg.Roster.Workspaces,
			Interval:   cfg.Roster.RefreshInterval,
			Timeout:    cfg.Backend.Timeout,
		}, logger)
	}

	return a, nil
}

// Handler returns the API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting audience",
		"api_addr", a.config.Server.ListenAddr,
		"backend", a.config.Backend.BaseURL,
		"metrics", a.metricsServer != nil,
		"refresh_workspaces", len(a.config.Roster.Workspaces),
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.worker != nil {
		a.worker.Start()
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server
	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	// Graceful shutdown
	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop background refresh first
	if a.worker != nil {
		a.worker.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	if err := a.snapshots.Close(); err != nil {
		a.logger.Error("snapshot storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: ParseLogLevel(cfg.Level),
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLogLevel maps a config level name to a slog level
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
