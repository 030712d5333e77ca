package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type countingSyncer struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
	done  chan struct{}
	want  int
	total int
}

func newCountingSyncer(want int, fail string) *countingSyncer {
	return &countingSyncer{calls: make(map[string]int), fail: fail, done: make(chan struct{}), want: want}
}

func (s *countingSyncer) Sync(ctx context.Context, workspace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[workspace]++
	s.total++
	if s.total == s.want {
		close(s.done)
	}

	if workspace == s.fail {
		return 0, errors.New("backend unavailable")
	}
	return 1, nil
}

func (s *countingSyncer) count(ws string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[ws]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerRefreshesAllWorkspaces(t *testing.T) {
	// ws-2 fails every time; ws-1 and ws-3 must still be refreshed
	syncer := newCountingSyncer(6, "ws-2")
	w := New(syncer, Config{
		Workspaces: []string{"ws-1", "ws-2", "ws-3"},
		Interval:   10 * time.Millisecond,
	}, testLogger())

	w.Start()
	select {
	case <-syncer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not run two refresh rounds")
	}
	w.Stop()

	for _, ws := range []string{"ws-1", "ws-2", "ws-3"} {
		if n := syncer.count(ws); n < 2 {
			t.Errorf("%s synced %d times, want at least 2", ws, n)
		}
	}
}

func TestWorkerStopsPromptly(t *testing.T) {
	syncer := newCountingSyncer(1, "")
	w := New(syncer, Config{Workspaces: []string{"ws-1"}, Interval: time.Hour}, testLogger())

	w.Start()
	select {
	case <-syncer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("initial refresh did not run")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}

	if n := syncer.count("ws-1"); n != 1 {
		t.Errorf("ws-1 synced %d times, want 1", n)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	w := New(newCountingSyncer(0, ""), Config{}, testLogger())
	defaults := DefaultConfig()

	if w.interval != defaults.Interval {
		t.Errorf("interval = %v, want %v", w.interval, defaults.Interval)
	}
	if w.timeout != defaults.Timeout {
		t.Errorf("timeout = %v, want %v", w.timeout, defaults.Timeout)
	}
}
