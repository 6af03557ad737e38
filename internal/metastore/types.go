// Package metastore implements the durable, serialized-access store for
// Item, SyncRun, and ChangeCursor records (§3, §4.2). It is grounded on
// the prior engine's internal/sync state store: a single embedded SQLite database
// in WAL mode, prepared statements grouped by domain, and schema migrations
// applied via PRAGMA user_version.
package metastore

import "time"

// ItemID is a remote item's opaque identity. Named distinctly from a plain
// string, following the internal/driveid.ID convention, so a
// parent/child ID mixup is a compile error rather than a silent bug.
type ItemID string

// SyncState is an Item's position in the per-file state machine (§3.1,
// §4.5).
type SyncState string

// Sync states, per §3.1.
const (
	StatePending     SyncState = "pending"
	StateDownloading SyncState = "downloading"
	StateComplete    SyncState = "complete"
	StateError       SyncState = "error"
)

// Kind is the kind of a tracked item, mirrored from driver.Kind at
// reconciliation time so MetaStore has no compile-time dependency on the
// driver package.
type Kind string

// Item kinds, per §3.1.
const (
	KindFolder   Kind = "folder"
	KindBinary   Kind = "binary"
	KindExported Kind = "exported"
	KindShortcut Kind = "shortcut"
)

// Item is the persisted record for one remote id ever seen (§3.1).
type Item struct {
	ID               ItemID
	Name             string
	Kind             Kind
	MimeType         string
	ParentID         ItemID // empty means root
	LocalPath        string
	RemoteChecksum   string // hex, empty if absent
	ModifiedAt       time.Time
	Size             *int64
	SyncState        SyncState
	LastSyncedAt     *time.Time
	ErrorMessage     string
	ShortcutTargetID ItemID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunStatus is a SyncRun's lifecycle status (§3.2).
type RunStatus string

// Run statuses, per §3.2.
const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// SyncRun is one invocation of Initial/Incremental/Resume (§3.2).
type SyncRun struct {
	RunID           int64
	StartedAt       time.Time
	CompletedAt     *time.Time
	Status          RunStatus
	FilesProcessed  int64
	BytesDownloaded int64
	StartCursor     string
	ErrorMessage    string
}

// ChangeCursor is the singleton change-token row (§3.3).
type ChangeCursor struct {
	Cursor    string
	UpdatedAt time.Time
}

// Statistics is the aggregate summary returned by Store.Statistics, backing
// the pull-style getSyncStatus operation (§6.3).
type Statistics struct {
	TotalItems   int64
	TotalSize    int64
	PendingCount int64
	ErrorCount   int64
}
