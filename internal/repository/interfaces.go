package repository

import (
	"context"
	"time"

	"meli-stock-audit/internal/model"
)

// SnapshotRepository defines access to the last-known item snapshots.
type SnapshotRepository interface {
	// Get returns the snapshot for an item, or nil if never sighted.
	Get(ctx context.Context, itemID string) (*model.ItemSnapshot, error)

	// Upsert inserts or updates a snapshot record keyed by item id.
	Upsert(ctx context.Context, snap model.ItemSnapshot) error

	// Count returns the number of tracked items.
	Count(ctx context.Context) (int64, error)

	// Reset deletes all snapshots (full-audit rebuild).
	Reset(ctx context.Context) error
}

// MovementRepository defines the append-only stock movement log.
type MovementRepository interface {
	// Append writes one movement entry. Entries are immutable.
	Append(ctx context.Context, entry model.MovementEntry) error

	// Since returns entries newer than the given time, for reporting.
	Since(ctx context.Context, since time.Time) ([]model.MovementEntry, error)

	// Archive moves entries older than the threshold to cold storage
	// and returns how many were moved.
	Archive(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RecordRepository defines the per-topic record tables plus the API
// errors table and the notification archive.
type RecordRepository interface {
	// AppendRecord writes a fetched resource payload to the records
	// table under its topic. Unknown topics are kept, not dropped.
	AppendRecord(ctx context.Context, entry model.RecordEntry) error

	// AppendError writes one row to the API errors table.
	AppendError(ctx context.Context, entry model.ErrorEntry) error

	// ArchiveNotifications moves evicted queue entries to cold storage.
	ArchiveNotifications(ctx context.Context, items []model.QueuedNotification) error
}

// PropertyRepository is the durable key-value store for small state:
// tokens, scan cursors, queue contents, processed-id set, seller id.
type PropertyRepository interface {
	// Get returns the value for key, or "" if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error
}
