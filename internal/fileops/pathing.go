package fileops

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/tonimelisma/drivemirror/internal/metastore"
)

// PathResolver assembles localPath values by walking the parent chain
// through MetaStore, following the parent-chain materialization
// idiom (§4.4.2).
type PathResolver struct {
	store         metastore.Store
	exportFormats map[string]string // sourceMime -> targetMime, from config
	exportExt     map[string]string // targetMime -> extension (e.g. ".docx")
}

// NewPathResolver constructs a PathResolver. exportFormats maps a source
// mime type to its export target mime type (config §6.2); exportExt maps
// a target mime type to the file extension FileOps appends.
func NewPathResolver(store metastore.Store, exportFormats, exportExt map[string]string) *PathResolver {
	return &PathResolver{store: store, exportFormats: exportFormats, exportExt: exportExt}
}

// LocalPathOf walks the parent chain from parentID up to the root,
// sanitizing each ancestor's name, and joins them with name (also
// sanitized) to produce a relative path. For exported items, the
// configured extension is appended unless name already ends with it
// (§4.4.2).
func (r *PathResolver) LocalPathOf(
	ctx context.Context, name string, mimeType string, parentID metastore.ItemID, kind metastore.Kind,
) (string, error) {
	segments, err := r.parentSegments(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("fileops: resolve parent chain: %w", err)
	}

	leaf := Sanitize(name)

	if kind == metastore.KindExported {
		leaf = r.withExportExtension(leaf, mimeType)
	}

	segments = append(segments, leaf)

	return path.Join(segments...), nil
}

// withExportExtension appends the export extension for mimeType unless
// name already ends with it.
func (r *PathResolver) withExportExtension(name, sourceMime string) string {
	targetMime, ok := r.exportFormats[sourceMime]
	if !ok {
		return name
	}

	ext, ok := r.exportExt[targetMime]
	if !ok {
		return name
	}

	if strings.HasSuffix(name, ext) {
		return name
	}

	return name + ext
}

// parentSegments walks up the parent chain starting at parentID, returning
// sanitized ancestor names in root-to-leaf order. An empty parentID (root)
// yields no segments.
func (r *PathResolver) parentSegments(ctx context.Context, parentID metastore.ItemID) ([]string, error) {
	var reversed []string

	current := parentID
	for current != "" {
		item, err := r.store.Get(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("get ancestor %s: %w", current, err)
		}

		if item == nil {
			// Ancestor not yet materialized in the store (e.g. out-of-order
			// delta processing); treat as root boundary rather than fail
			// the whole path assembly.
			break
		}

		reversed = append(reversed, Sanitize(item.Name))
		current = item.ParentID
	}

	segments := make([]string, len(reversed))
	for i, seg := range reversed {
		segments[len(reversed)-1-i] = seg
	}

	return segments, nil
}
