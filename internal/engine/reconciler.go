package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/fileops"
	"github.com/tonimelisma/drivemirror/internal/metastore"
	"github.com/tonimelisma/drivemirror/internal/retry"
)

// Reconciler translates remote listings or change deltas into MetaStore
// mutations (§4.6), grounded on the prior delta-to-mutation
// translation idiom, generalized to the three paths (Initial/Incremental/
// Resume) and three delta outcomes (new/modified/removed).
type Reconciler struct {
	store              metastore.Store
	drv                driver.Driver
	policy             *retry.Policy
	resolver           *fileops.PathResolver
	baseDir            string
	deleteRemovedFiles bool
	logger             *slog.Logger
}

// NewReconciler constructs a Reconciler. baseDir roots the relative
// Item.LocalPath values it reads back from the store when removing files
// for deleted remote items.
func NewReconciler(
	store metastore.Store, drv driver.Driver, policy *retry.Policy,
	resolver *fileops.PathResolver, baseDir string, deleteRemovedFiles bool, logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		store: store, drv: drv, policy: policy, resolver: resolver, baseDir: baseDir,
		deleteRemovedFiles: deleteRemovedFiles, logger: logger,
	}
}

// Initial implements §4.6.1: capture a fresh cursor, then upsert the
// complete current remote snapshot as Pending. Returns the captured cursor
// for the caller to persist once the listing is fully reconciled.
func (r *Reconciler) Initial(ctx context.Context) (cursor string, enqueued int, err error) {
	var c0 string

	err = r.policy.Run(ctx, "currentCursor", func(ctx context.Context) error {
		v, cerr := r.drv.CurrentCursor(ctx)
		if cerr != nil {
			return cerr
		}

		c0 = v

		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("engine: initial currentCursor: %w", err)
	}

	var items []driver.ItemDescriptor

	err = r.policy.Run(ctx, "listAll", func(ctx context.Context) error {
		v, lerr := r.drv.ListAll(ctx, nil)
		if lerr != nil {
			return lerr
		}

		items = v

		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("engine: initial listAll: %w", err)
	}

	for i := range items {
		if err := r.upsertPending(ctx, &items[i]); err != nil {
			return "", 0, fmt.Errorf("engine: initial upsert %s: %w", items[i].ID, err)
		}
	}

	return c0, len(items), nil
}

// Incremental implements §4.6.2: load the persisted cursor, fetch one
// batch of deltas, and apply new/modified/removed outcomes. Returns the next
// cursor for the caller to persist once the changes are fully drained.
func (r *Reconciler) Incremental(ctx context.Context) (nextCursor string, enqueued int, err error) {
	cur, err := r.store.GetCursor(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("engine: incremental load cursor: %w", err)
	}

	if cur == nil {
		return "", 0, fmt.Errorf("engine: incremental: no cursor persisted, run Initial first")
	}

	var page *driver.DeltaPage

	err = r.policy.Run(ctx, "listChanges", func(ctx context.Context) error {
		v, lerr := r.drv.ListChanges(ctx, cur.Cursor)
		if lerr != nil {
			return lerr
		}

		page = v

		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("engine: incremental listChanges: %w", err)
	}

	count := 0

	for _, delta := range page.Deltas {
		changed, err := r.applyDelta(ctx, &delta)
		if err != nil {
			return "", 0, fmt.Errorf("engine: apply delta %s: %w", delta.ID, err)
		}

		if changed {
			count++
		}
	}

	return page.NextCursor, count, nil
}

// applyDelta applies one delta per §4.6.2's outcome table, reporting
// whether it resulted in a Pending upsert (for the enqueued count/
// DiscoveringFiles event).
func (r *Reconciler) applyDelta(ctx context.Context, delta *driver.Delta) (bool, error) {
	isRemoval := delta.Removed || delta.Item == nil || delta.Item.Trashed

	if isRemoval {
		return false, r.applyRemoval(ctx, metastore.ItemID(delta.ID))
	}

	existing, err := r.store.Get(ctx, metastore.ItemID(delta.Item.ID))
	if err != nil {
		return false, fmt.Errorf("get existing item %s: %w", delta.Item.ID, err)
	}

	if existing == nil {
		return true, r.upsertPending(ctx, delta.Item)
	}

	if !existing.ModifiedAt.Equal(delta.Item.ModifiedAt) || existing.RemoteChecksum != delta.Item.Checksum {
		return true, r.upsertPending(ctx, delta.Item)
	}

	return false, nil
}

// applyRemoval deletes the local file (if deleteRemovedFiles is configured)
// and the Item record; otherwise the record is left as-is (§4.6.2).
func (r *Reconciler) applyRemoval(ctx context.Context, id metastore.ItemID) error {
	if !r.deleteRemovedFiles {
		return nil
	}

	existing, err := r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get item for removal %s: %w", id, err)
	}

	if existing == nil {
		return nil
	}

	if existing.LocalPath != "" {
		if err := os.RemoveAll(filepath.Join(r.baseDir, existing.LocalPath)); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("engine: failed to remove local file for deleted item",
				slog.String("item", string(id)), slog.Any("error", err))
		}
	}

	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete item record %s: %w", id, err)
	}

	return nil
}

// upsertPending computes localPath via FileOps and upserts the item with
// syncState=Pending, the birth/refresh transition of §4.5's table.
func (r *Reconciler) upsertPending(ctx context.Context, desc *driver.ItemDescriptor) error {
	localPath, err := r.resolver.LocalPathOf(ctx, desc.Name, desc.MimeType, metastore.ItemID(desc.ParentID), metastore.Kind(desc.Kind))
	if err != nil {
		return fmt.Errorf("compute local path for %s: %w", desc.ID, err)
	}

	item := &metastore.Item{
		ID:               metastore.ItemID(desc.ID),
		Name:             desc.Name,
		Kind:             metastore.Kind(desc.Kind),
		MimeType:         desc.MimeType,
		ParentID:         metastore.ItemID(desc.ParentID),
		LocalPath:        localPath,
		RemoteChecksum:   desc.Checksum,
		ModifiedAt:       desc.ModifiedAt,
		Size:             desc.Size,
		SyncState:        metastore.StatePending,
		ShortcutTargetID: metastore.ItemID(desc.ShortcutTargetID),
	}

	return r.store.Upsert(ctx, item)
}

// ResumeWork implements §4.6.3: inspect the latest run; if it was left
// Running or Interrupted, the pending set is every item in Pending or
// Downloading. The bool reports whether a resume is in effect; when false,
// the caller should fall through to Incremental.
func (r *Reconciler) ResumeWork(ctx context.Context) ([]*metastore.Item, bool, error) {
	latest, err := r.store.LatestRun(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("engine: load latest run: %w", err)
	}

	if latest == nil {
		return nil, false, nil
	}

	if latest.Status != metastore.RunRunning && latest.Status != metastore.RunInterrupted {
		return nil, false, nil
	}

	items, err := r.store.ByStates(ctx, metastore.StatePending, metastore.StateDownloading)
	if err != nil {
		return nil, false, fmt.Errorf("engine: load pending set: %w", err)
	}

	return items, true, nil
}
