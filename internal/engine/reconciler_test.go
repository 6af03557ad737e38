package engine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/engine"
	"github.com/tonimelisma/drivemirror/internal/fileops"
	"github.com/tonimelisma/drivemirror/internal/metastore"
	"github.com/tonimelisma/drivemirror/internal/retry"
	"github.com/tonimelisma/drivemirror/internal/testsupport"
)

func newTestReconciler(t *testing.T, store metastore.Store, drv *testsupport.FakeDriver, deleteRemoved bool) *engine.Reconciler {
	t.Helper()

	resolver := fileops.NewPathResolver(store, nil, nil)
	policy := retry.NewPolicy(1, time.Millisecond, slog.Default())

	return engine.NewReconciler(store, drv, policy, resolver, t.TempDir(), deleteRemoved, nil)
}

func TestReconcilerInitialUpsertsPending(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()
	drv.SetCursor("cursor-0")
	drv.SetItems([]driver.ItemDescriptor{
		{ID: "folder-1", Name: "Work", Kind: driver.KindFolder, ModifiedAt: time.Now()},
		{ID: "a1", Name: "a.txt", ParentID: "folder-1", Kind: driver.KindBinary, ModifiedAt: time.Now()},
	})

	r := newTestReconciler(t, store, drv, false)

	cursor, enqueued, err := r.Initial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cursor-0", cursor)
	assert.Equal(t, 2, enqueued)

	item, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, metastore.StatePending, item.SyncState)
	assert.Equal(t, "Work/a.txt", item.LocalPath)
}

func TestReconcilerIncrementalNewModifiedRemoved(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()

	now := time.Now()

	require.NoError(t, store.PutCursor(context.Background(), "cursor-0", now))
	require.NoError(t, store.Upsert(context.Background(), &metastore.Item{
		ID: "a1", Name: "a.txt", Kind: metastore.KindBinary, RemoteChecksum: "old-hash",
		ModifiedAt: now, SyncState: metastore.StateComplete, LocalPath: "a.txt",
	}))
	require.NoError(t, store.Upsert(context.Background(), &metastore.Item{
		ID: "d1", Name: "notes.docx", Kind: metastore.KindExported,
		ModifiedAt: now, SyncState: metastore.StateComplete, LocalPath: "notes.docx",
	}))

	newModified := now.Add(time.Hour)

	drv.QueueDeltaPage(driver.DeltaPage{
		NextCursor: "cursor-1",
		Deltas: []driver.Delta{
			{ID: "b1", Item: &driver.ItemDescriptor{ID: "b1", Name: "b.txt", Kind: driver.KindBinary, ModifiedAt: now}},
			{ID: "a1", Item: &driver.ItemDescriptor{ID: "a1", Name: "a.txt", Kind: driver.KindBinary, Checksum: "new-hash", ModifiedAt: newModified}},
			{ID: "d1", Removed: true},
		},
	})

	r := newTestReconciler(t, store, drv, true)

	nextCursor, enqueued, err := r.Incremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", nextCursor)
	assert.Equal(t, 2, enqueued)

	b1, err := store.Get(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, b1)
	assert.Equal(t, metastore.StatePending, b1.SyncState)

	a1, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, metastore.StatePending, a1.SyncState)
	assert.Equal(t, "new-hash", a1.RemoteChecksum)

	d1, err := store.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Nil(t, d1, "removed item with deleteRemovedFiles=true must be deleted")
}

func TestReconcilerIncrementalNoOpWhenUnchanged(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()

	now := time.Now()
	require.NoError(t, store.PutCursor(context.Background(), "cursor-0", now))
	require.NoError(t, store.Upsert(context.Background(), &metastore.Item{
		ID: "a1", Name: "a.txt", Kind: metastore.KindBinary, RemoteChecksum: "hash",
		ModifiedAt: now, SyncState: metastore.StateComplete, LocalPath: "a.txt",
	}))

	drv.QueueDeltaPage(driver.DeltaPage{
		NextCursor: "cursor-1",
		Deltas: []driver.Delta{
			{ID: "a1", Item: &driver.ItemDescriptor{ID: "a1", Name: "a.txt", Kind: driver.KindBinary, Checksum: "hash", ModifiedAt: now}},
		},
	})

	r := newTestReconciler(t, store, drv, false)

	_, enqueued, err := r.Incremental(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued)

	a1, err := store.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, metastore.StateComplete, a1.SyncState, "unchanged item is not re-queued")
}

func TestReconcilerRemovalWithoutDeleteConfiguredKeepsRecord(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()

	now := time.Now()
	require.NoError(t, store.PutCursor(context.Background(), "cursor-0", now))
	require.NoError(t, store.Upsert(context.Background(), &metastore.Item{
		ID: "d1", Name: "notes.docx", Kind: metastore.KindExported,
		ModifiedAt: now, SyncState: metastore.StateComplete, LocalPath: "notes.docx",
	}))

	drv.QueueDeltaPage(driver.DeltaPage{
		NextCursor: "cursor-1",
		Deltas:     []driver.Delta{{ID: "d1", Removed: true}},
	})

	r := newTestReconciler(t, store, drv, false)

	_, _, err := r.Incremental(context.Background())
	require.NoError(t, err)

	d1, err := store.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.NotNil(t, d1, "record must survive when deleteRemovedFiles=false")
}

func TestReconcilerResumeWorkFindsInFlightItems(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()

	ctx := context.Background()
	runID, err := store.CreateRun(ctx, time.Now(), "")
	require.NoError(t, err)
	_ = runID

	require.NoError(t, store.Upsert(ctx, &metastore.Item{
		ID: "a1", Name: "a.txt", Kind: metastore.KindBinary, SyncState: metastore.StateDownloading, ModifiedAt: time.Now(),
	}))

	r := newTestReconciler(t, store, drv, false)

	items, resumed, err := r.ResumeWork(ctx)
	require.NoError(t, err)
	assert.True(t, resumed)
	require.Len(t, items, 1)
	assert.Equal(t, metastore.ItemID("a1"), items[0].ID)
}

func TestReconcilerResumeFallsThroughWhenLastRunCompleted(t *testing.T) {
	store := openMemStore(t)
	drv := testsupport.NewFakeDriver()

	ctx := context.Background()
	runID, err := store.CreateRun(ctx, time.Now(), "")
	require.NoError(t, err)
	require.NoError(t, store.CompleteRun(ctx, runID, time.Now(), metastore.RunCompleted, ""))

	r := newTestReconciler(t, store, drv, false)

	_, resumed, err := r.ResumeWork(ctx)
	require.NoError(t, err)
	assert.False(t, resumed)
}
