package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Syncer refreshes the stored roster of a workspace
type Syncer interface {
	Sync(ctx context.Context, workspace string) (int, error)
}

// Worker refreshes workspace roster snapshots in the background
type Worker struct {
	syncer     Syncer
	workspaces []string
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds worker configuration
type Config struct {
	Workspaces []string
	Interval   time.Duration
	Timeout    time.Duration // per workspace sync
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Minute,
		Timeout:  time.Minute,
	}
}

// New creates a new worker
func New(syncer Syncer, cfg Config, logger *slog.Logger) *Worker {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		syncer:     syncer,
		workspaces: append([]string(nil), cfg.Workspaces...),
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		logger:     logger.With("component", "worker"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker. The first refresh runs immediately.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("worker started", "workspaces", len(w.workspaces), "interval", w.interval)
}

// Stop stops the worker gracefully
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	w.refresh()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *Worker) refresh() {
	for _, ws := range w.workspaces {
		if w.ctx.Err() != nil {
			return
		}

		ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
		n, err := w.syncer.Sync(ctx, ws)
		cancel()

		if err != nil {
			w.logger.Warn("roster refresh failed", "workspace", ws, "error", err)
			continue
		}
		w.logger.Debug("roster refreshed", "workspace", ws, "contacts", n)
	}
}
