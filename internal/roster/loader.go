package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxzi/audience/internal/metrics"
	"github.com/foxzi/audience/internal/segment"
)

// ErrNoRoster is returned when neither the backend nor a snapshot can supply a roster
var ErrNoRoster = errors.New("roster unavailable")

// Fetcher fetches the live roster of a workspace
type Fetcher interface {
	Contacts(ctx context.Context, workspaceID string) ([]segment.Contact, error)
}

// Store persists roster snapshots
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, workspace string) (*Snapshot, error)
}

// Loader serves rosters from the backend and falls back to the last snapshot
type Loader struct {
	fetcher Fetcher
	store   Store
	logger  *slog.Logger
	now     func() time.Time
}

// NewLoader creates a loader. fetcher may be nil for offline use.
func NewLoader(fetcher Fetcher, store Store, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		store:   store,
		logger:  logger.With("component", "roster"),
		now:     time.Now,
	}
}

// Roster returns the live roster, refreshing the snapshot on success.
// When the backend fails it serves the stored snapshot instead.
func (l *Loader) Roster(ctx context.Context, workspace string) (*Snapshot, error) {
	if l.fetcher == nil {
		return l.Cached(ctx, workspace)
	}

	snap, fetchErr := l.fetch(ctx, workspace)
	if fetchErr == nil {
		return snap, nil
	}

	cached, err := l.store.Load(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if cached == nil {
		return nil, fmt.Errorf("%w for workspace %s: %v", ErrNoRoster, workspace, fetchErr)
	}

	metrics.IncRosterFallback()
	l.logger.Warn("backend unavailable, serving roster snapshot",
		"workspace", workspace,
		"fetched_at", cached.FetchedAt,
		"contacts", len(cached.Contacts),
		"error", fetchErr,
	)
	return cached, nil
}

// Cached returns the stored snapshot without contacting the backend
func (l *Loader) Cached(ctx context.Context, workspace string) (*Snapshot, error) {
	snap, err := l.store.Load(ctx, workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w for workspace %s: no snapshot", ErrNoRoster, workspace)
	}
	return snap, nil
}

// Sync fetches the live roster and stores it, returning the contact count
func (l *Loader) Sync(ctx context.Context, workspace string) (int, error) {
	if l.fetcher == nil {
		return 0, fmt.Errorf("%w: no backend configured", ErrNoRoster)
	}
	snap, err := l.fetch(ctx, workspace)
	if err != nil {
		return 0, err
	}
	return len(snap.Contacts), nil
}

func (l *Loader) fetch(ctx context.Context, workspace string) (*Snapshot, error) {
	contacts, err := l.fetcher.Contacts(ctx, workspace)
	metrics.ObserveRosterSync(workspace, len(contacts), err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roster: %w", err)
	}
	if contacts == nil {
		contacts = []segment.Contact{}
	}

	snap := &Snapshot{
		Workspace: workspace,
		FetchedAt: l.now(),
		Contacts:  contacts,
		Source:    SourceLive,
	}
	if err := l.store.Save(ctx, snap); err != nil {
		// the live roster is still usable
		l.logger.Error("failed to save roster snapshot", "workspace", workspace, "error", err)
	}

	l.logger.Debug("roster fetched", "workspace", workspace, "contacts", len(contacts))
	return snap, nil
}
