package metastore

import (
	"context"
	"time"
)

// Store is the interface for the sync state database. All sync components
// operate against this interface rather than the concrete SQLiteStore,
// following the internal/sync.Store split.
type Store interface {
	// Item operations (§4.2).
	Upsert(ctx context.Context, item *Item) error
	Get(ctx context.Context, id ItemID) (*Item, error)
	UpdateState(ctx context.Context, id ItemID, state SyncState, lastSyncedAt *time.Time, errorMessage string) error
	UpdateLocalPath(ctx context.Context, id ItemID, localPath string) error
	ByState(ctx context.Context, state SyncState) ([]*Item, error)
	ByStates(ctx context.Context, states ...SyncState) ([]*Item, error)
	Children(ctx context.Context, parentID ItemID) ([]*Item, error)
	Delete(ctx context.Context, id ItemID) error

	// Run operations.
	CreateRun(ctx context.Context, startedAt time.Time, startCursor string) (int64, error)
	UpdateRunProgress(ctx context.Context, runID int64, filesProcessed, bytesDownloaded int64) error
	CompleteRun(ctx context.Context, runID int64, completedAt time.Time, status RunStatus, errorMessage string) error
	LatestRun(ctx context.Context) (*SyncRun, error)

	// Cursor operations.
	PutCursor(ctx context.Context, cursor string, updatedAt time.Time) error
	GetCursor(ctx context.Context) (*ChangeCursor, error)

	// Statistics.
	Statistics(ctx context.Context) (*Statistics, error)

	// Maintenance.
	Checkpoint(ctx context.Context) error
	Close() error
}
