package metastore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/metastore"
)

func openTestStore(t *testing.T) *metastore.SQLiteStore {
	t.Helper()

	store, err := metastore.Open(":memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func sampleItem(id metastore.ItemID) *metastore.Item {
	return &metastore.Item{
		ID:             id,
		Name:           "report.pdf",
		Kind:           metastore.KindBinary,
		MimeType:       "application/pdf",
		ParentID:       "root",
		LocalPath:      "/mirror/report.pdf",
		RemoteChecksum: "abc123",
		ModifiedAt:     time.Now().Truncate(time.Second),
		SyncState:      metastore.StatePending,
	}
}

func TestUpsertAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-1")
	require.NoError(t, store.Upsert(ctx, item))

	got, err := store.Get(ctx, "item-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.Name, got.Name)
	assert.Equal(t, item.SyncState, got.SyncState)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetNotFoundReturnsNilNil(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	got, err := store.Get(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-2")
	require.NoError(t, store.Upsert(ctx, item))

	item.Name = "renamed.pdf"
	item.SyncState = metastore.StateComplete
	require.NoError(t, store.Upsert(ctx, item))

	got, err := store.Get(ctx, "item-2")
	require.NoError(t, err)
	assert.Equal(t, "renamed.pdf", got.Name)
	assert.Equal(t, metastore.StateComplete, got.SyncState)
}

func TestUpdateState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-3")
	require.NoError(t, store.Upsert(ctx, item))

	now := time.Now().Truncate(time.Second)
	require.NoError(t, store.UpdateState(ctx, "item-3", metastore.StateComplete, &now, ""))

	got, err := store.Get(ctx, "item-3")
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.Equal(t, metastore.StateComplete, got.SyncState)
}

func TestUpdateStateToError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-4")
	require.NoError(t, store.Upsert(ctx, item))
	require.NoError(t, store.UpdateState(ctx, "item-4", metastore.StateError, nil, "checksum mismatch"))

	got, err := store.Get(ctx, "item-4")
	require.NoError(t, err)
	assert.Equal(t, metastore.StateError, got.SyncState)
	assert.Equal(t, "checksum mismatch", got.ErrorMessage)
}

func TestUpdateLocalPath(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-conflict")
	item.LocalPath = "a.txt"
	require.NoError(t, store.Upsert(ctx, item))

	require.NoError(t, store.UpdateLocalPath(ctx, "item-conflict", "a (1).txt"))

	got, err := store.Get(ctx, "item-conflict")
	require.NoError(t, err)
	assert.Equal(t, "a (1).txt", got.LocalPath)
}

func TestByStateAndByStates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pending := sampleItem("p-1")
	pending.SyncState = metastore.StatePending
	downloading := sampleItem("d-1")
	downloading.SyncState = metastore.StateDownloading
	complete := sampleItem("c-1")
	complete.SyncState = metastore.StateComplete

	require.NoError(t, store.Upsert(ctx, pending))
	require.NoError(t, store.Upsert(ctx, downloading))
	require.NoError(t, store.Upsert(ctx, complete))

	pendingOnly, err := store.ByState(ctx, metastore.StatePending)
	require.NoError(t, err)
	assert.Len(t, pendingOnly, 1)

	both, err := store.ByStates(ctx, metastore.StatePending, metastore.StateDownloading)
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestChildren(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	parent := sampleItem("folder-1")
	parent.Kind = metastore.KindFolder
	parent.ParentID = "root"

	child1 := sampleItem("file-1")
	child1.ParentID = "folder-1"
	child2 := sampleItem("file-2")
	child2.ParentID = "folder-1"

	require.NoError(t, store.Upsert(ctx, parent))
	require.NoError(t, store.Upsert(ctx, child1))
	require.NoError(t, store.Upsert(ctx, child2))

	children, err := store.Children(ctx, "folder-1")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	item := sampleItem("item-5")
	require.NoError(t, store.Upsert(ctx, item))
	require.NoError(t, store.Delete(ctx, "item-5"))

	got, err := store.Get(ctx, "item-5")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := time.Now().Truncate(time.Second)
	runID, err := store.CreateRun(ctx, start, "")
	require.NoError(t, err)
	assert.NotZero(t, runID)

	require.NoError(t, store.UpdateRunProgress(ctx, runID, 10, 2048))

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, metastore.RunRunning, latest.Status)
	assert.Equal(t, int64(10), latest.FilesProcessed)

	require.NoError(t, store.CompleteRun(ctx, runID, time.Now(), metastore.RunCompleted, ""))

	latest, err = store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, metastore.RunCompleted, latest.Status)
	assert.NotNil(t, latest.CompletedAt)
}

func TestLatestRunWithNoRuns(t *testing.T) {
	store := openTestStore(t)

	latest, err := store.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCursorRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	got, err := store.GetCursor(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, store.PutCursor(ctx, "cursor-abc", now))

	got, err = store.GetCursor(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cursor-abc", got.Cursor)

	require.NoError(t, store.PutCursor(ctx, "cursor-def", time.Now()))

	got, err = store.GetCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cursor-def", got.Cursor)
}

func TestStatistics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	size1, size2 := int64(100), int64(200)

	pending := sampleItem("s-1")
	pending.Size = &size1
	pending.SyncState = metastore.StatePending

	errored := sampleItem("s-2")
	errored.Size = &size2
	errored.SyncState = metastore.StateError

	require.NoError(t, store.Upsert(ctx, pending))
	require.NoError(t, store.Upsert(ctx, errored))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalItems)
	assert.Equal(t, int64(300), stats.TotalSize)
	assert.Equal(t, int64(1), stats.PendingCount)
	assert.Equal(t, int64(1), stats.ErrorCount)
}

func TestCheckpoint(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Checkpoint(context.Background()))
}
