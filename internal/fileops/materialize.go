package fileops

import (
	"context"
	"fmt"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/metastore"
)

// Materialize routes an item to the kind-appropriate commit path (§4.4.4):
// folder creates a directory, shortcut is a no-op-with-warning,
// exported streams a rendition, binary streams raw content. warn receives a
// human-readable message for the shortcut no-op case; it may be nil.
//
// The returned localPath is relative to baseDir like item.LocalPath, and
// differs from it only for KindExported/KindBinary when ResolveConflict
// (§4.4.3) assigned a "base (N).ext" suffix to avoid overwriting an
// existing file at the assembled path; the caller is responsible for
// persisting the returned path back onto the item's MetaStore row.
func (m *Materializer) Materialize(
	ctx context.Context, item *metastore.Item, targetMime string, onProgress driver.ProgressFunc, warn func(string),
) (string, error) {
	switch item.Kind {
	case metastore.KindFolder:
		return item.LocalPath, m.EnsureDirectory(item.LocalPath)

	case metastore.KindShortcut:
		if warn != nil {
			warn(fmt.Sprintf("shortcut %q (%s) left unmaterialized: concrete symlink creation is a future refinement", item.Name, item.ID))
		}

		return item.LocalPath, nil

	case metastore.KindExported:
		return m.ExportAndCommit(ctx, string(item.ID), targetMime, item.LocalPath, onProgress)

	case metastore.KindBinary:
		return m.DownloadAndCommit(ctx, string(item.ID), item.LocalPath, item.RemoteChecksum, onProgress)

	default:
		return "", fmt.Errorf("fileops: unknown item kind %q for %s", item.Kind, item.ID)
	}
}
