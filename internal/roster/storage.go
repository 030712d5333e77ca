package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/audience/internal/segment"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

// Source tells where a roster came from
type Source string

const (
	SourceLive     Source = "live"
	SourceSnapshot Source = "snapshot"
	SourceInline   Source = "inline"
)

// Snapshot is a workspace roster captured at FetchedAt
type Snapshot struct {
	Workspace string            `json:"workspace"`
	FetchedAt time.Time         `json:"fetched_at"`
	Contacts  []segment.Contact `json:"contacts"`
	Source    Source            `json:"-"`
}

// SnapshotInfo describes a stored snapshot without its contacts
type SnapshotInfo struct {
	Workspace string    `json:"workspace"`
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
}

// BoltStore keeps the last fetched roster of each workspace in BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the snapshot database at path
func NewBoltStore(path string) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Save replaces the snapshot of snap.Workspace
func (s *BoltStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap.Workspace == "" {
		return fmt.Errorf("snapshot workspace is required")
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	meta, err := json.Marshal(SnapshotInfo{
		Workspace: snap.Workspace,
		FetchedAt: snap.FetchedAt,
		Count:     len(snap.Contacts),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot info: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(snap.Workspace)
		if err := tx.Bucket(bucketSnapshots).Put(key, data); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		if err := tx.Bucket(bucketMeta).Put(key, meta); err != nil {
			return fmt.Errorf("failed to store snapshot info: %w", err)
		}
		return nil
	})
}

// Load returns the snapshot of a workspace, or nil if none was saved
func (s *BoltStore) Load(ctx context.Context, workspace string) (*Snapshot, error) {
	var snap *Snapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(workspace))
		if data == nil {
			return nil
		}

		snap = &Snapshot{}
		if err := json.Unmarshal(data, snap); err != nil {
			return fmt.Errorf("failed to decode snapshot %s: %w", workspace, err)
		}
		snap.Source = SourceSnapshot
		if snap.Contacts == nil {
			snap.Contacts = []segment.Contact{}
		}
		return nil
	})

	return snap, err
}

// List returns info about every stored snapshot, ordered by workspace
func (s *BoltStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	infos := []SnapshotInfo{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMeta).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var info SnapshotInfo
			if err := json.Unmarshal(v, &info); err != nil {
				continue
			}
			infos = append(infos, info)
		}
		return nil
	})

	return infos, err
}

// Delete removes the snapshot of a workspace
func (s *BoltStore) Delete(ctx context.Context, workspace string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(workspace)
		if err := tx.Bucket(bucketSnapshots).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete(key)
	})
}

// Close closes the database connection
func (s *BoltStore) Close() error {
	return s.db.Close()
}
