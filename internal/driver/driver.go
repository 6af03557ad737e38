// Package driver defines the Remote Driver contract: the cloud-drive client
// the Sync Engine consumes. A concrete implementation (e.g. backed by
// Microsoft Graph, the way the prior engine's internal/graph package is) lives
// outside this module — the engine only ever depends on this interface, so
// it can be driven by a fake in tests and by a real client in production.
package driver

import (
	"context"
	"io"
	"time"
)

// Kind is the kind of a remote drive item, derived by the driver from the
// item's raw mime type.
type Kind string

// Item kinds as carried on ItemDescriptor.
const (
	KindFolder   Kind = "folder"
	KindBinary   Kind = "binary"
	KindExported Kind = "exported"
	KindShortcut Kind = "shortcut"
)

// ItemDescriptor is one remote item as returned by ListAll or as the payload
// of a Delta. Fields mirror §6.1.
type ItemDescriptor struct {
	ID               string
	Name             string
	MimeType         string
	ParentID         string // empty means root
	Checksum         string // hex, binary items only
	ModifiedAt       time.Time
	Size             *int64 // nil for exported items
	Kind             Kind
	ShortcutTargetID string
	Trashed          bool
}

// Delta is one entry in a listChanges page: either a removal (Removed true,
// Item possibly nil) or an upsert (Item populated).
type Delta struct {
	ID      string
	Removed bool
	Item    *ItemDescriptor
}

// DeltaPage is one page of listChanges results, plus the cursor to resume
// from on the next call.
type DeltaPage struct {
	Deltas     []Delta
	NextCursor string
}

// ProgressFunc reports bytes transferred so far and the known total, if any.
type ProgressFunc func(bytesDone int64, totalBytes *int64)

// Driver is the full Remote Driver contract consumed by the Sync Engine.
// All methods are fallible and context-aware; long-running streaming calls
// (DownloadBinary, ExportRendition) accept a progress callback.
type Driver interface {
	// IsAuthenticated reports whether the driver currently holds a usable
	// credential. Authenticate and the interactive authorization flow are
	// an external collaborator's concern (see the oauth2 package for how a
	// real implementation manages token refresh) — the engine only ever
	// calls IsAuthenticated as a precondition check.
	IsAuthenticated(ctx context.Context) (bool, error)
	Authenticate(ctx context.Context, forceReauth bool) error

	// CurrentCursor returns a fresh change-cursor snapshot, used by the
	// Initial sync path to seed the cursor the engine will persist once the
	// initial listing is fully reconciled.
	CurrentCursor(ctx context.Context) (string, error)

	// ListAll yields the complete current remote snapshot (paginated
	// internally by the driver). fields is an opaque hint (e.g. a
	// Graph-style $select list) the driver may use to limit payload size.
	ListAll(ctx context.Context, fields []string) ([]ItemDescriptor, error)

	// ListChanges yields one batch of deltas since cursor plus the next
	// cursor to resume from (paginated internally by the driver).
	ListChanges(ctx context.Context, cursor string) (*DeltaPage, error)

	// DownloadBinary streams the raw content of a binary item to w.
	DownloadBinary(ctx context.Context, id string, w io.Writer, onProgress ProgressFunc) error

	// ExportRendition streams an exported rendition of id in targetMime to w.
	ExportRendition(ctx context.Context, id, targetMime string, w io.Writer, onProgress ProgressFunc) error
}
