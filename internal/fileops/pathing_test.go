package fileops_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/fileops"
	"github.com/tonimelisma/drivemirror/internal/metastore"
)

func newStoreWithFolder(t *testing.T) metastore.Store {
	t.Helper()

	store, err := metastore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &metastore.Item{
		ID: "folder-1", Name: "Work", Kind: metastore.KindFolder,
		ParentID: "", SyncState: metastore.StatePending, ModifiedAt: time.Now(),
	}))

	return store
}

func TestLocalPathOfJoinsParentChain(t *testing.T) {
	store := newStoreWithFolder(t)
	resolver := fileops.NewPathResolver(store, nil, nil)

	got, err := resolver.LocalPathOf(context.Background(), "a.txt", "text/plain", "folder-1", metastore.KindBinary)
	require.NoError(t, err)
	require.Equal(t, "Work/a.txt", got)
}

func TestLocalPathOfRootHasNoParentSegment(t *testing.T) {
	store, err := metastore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resolver := fileops.NewPathResolver(store, nil, nil)

	got, err := resolver.LocalPathOf(context.Background(), "a.txt", "text/plain", "", metastore.KindBinary)
	require.NoError(t, err)
	require.Equal(t, "a.txt", got)
}

func TestLocalPathOfAppendsExportExtension(t *testing.T) {
	store := newStoreWithFolder(t)
	resolver := fileops.NewPathResolver(store,
		map[string]string{"application/vnd.google-apps.document": "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		map[string]string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx"},
	)

	got, err := resolver.LocalPathOf(
		context.Background(), "notes", "application/vnd.google-apps.document", "folder-1", metastore.KindExported,
	)
	require.NoError(t, err)
	require.Equal(t, "Work/notes.docx", got)
}

func TestLocalPathOfDoesNotDoubleAppendExtension(t *testing.T) {
	store := newStoreWithFolder(t)
	resolver := fileops.NewPathResolver(store,
		map[string]string{"application/vnd.google-apps.document": "target/docx"},
		map[string]string{"target/docx": ".docx"},
	)

	got, err := resolver.LocalPathOf(
		context.Background(), "notes.docx", "application/vnd.google-apps.document", "folder-1", metastore.KindExported,
	)
	require.NoError(t, err)
	require.Equal(t, "Work/notes.docx", got)
}

func TestLocalPathOfSanitizesNameWithTraversal(t *testing.T) {
	store, err := metastore.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	resolver := fileops.NewPathResolver(store, nil, nil)

	got, err := resolver.LocalPathOf(context.Background(), "../../../etc/passwd", "text/plain", "", metastore.KindBinary)
	require.NoError(t, err)
	require.Equal(t, ".._.._.._etc_passwd", got)
}
