package fileops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/pathguard"
)

// ErrIntegrity is returned by DownloadAndCommit when the downloaded
// content's checksum still mismatches after one retry (§4.4.5 step 5).
var ErrIntegrity = errors.New("fileops: checksum mismatch after retry")

const tempSuffix = ".download.tmp"

// Materializer performs the routed, atomic materialization of an Item onto
// disk, grounded on the prior internal/sync/executor_transfer.go
// write-to-temp-then-hash-then-rename protocol.
type Materializer struct {
	baseDir string
	drv     driver.Driver
}

// NewMaterializer constructs a Materializer rooted at baseDir.
func NewMaterializer(baseDir string, drv driver.Driver) *Materializer {
	return &Materializer{baseDir: baseDir, drv: drv}
}

// resolve joins a MetaStore-relative localPath onto baseDir, producing the
// absolute path PathGuard and the filesystem calls operate on. Item.LocalPath
// is stored relative to baseDir (§3.1), so every entry point here takes
// that relative form and resolves it once, up front.
func (m *Materializer) resolve(localPath string) string {
	return filepath.Join(m.baseDir, localPath)
}

// DownloadAndCommit implements §4.4.5: resolve any path collision, write to
// an unpredictably-named temp file, verify checksum if present (retrying the
// whole transfer once on mismatch), then atomically rename onto the
// resolved path. localPath is relative to baseDir; the returned localPath is
// too, and differs from the input only when ResolveConflict assigned a
// "base (N).ext" suffix.
func (m *Materializer) DownloadAndCommit(
	ctx context.Context, id, localPath, remoteChecksum string, onProgress driver.ProgressFunc,
) (string, error) {
	absPath, err := m.resolveForCommit(localPath)
	if err != nil {
		return "", err
	}

	parent := filepath.Dir(absPath)

	attempted, err := m.attemptDownload(ctx, id, parent, absPath, remoteChecksum, onProgress)
	if err == nil {
		return m.relativize(absPath), nil
	}

	if !errors.Is(err, ErrIntegrity) || attempted {
		return "", err
	}

	// Single retry from step 2, per §4.4.5 step 5.
	_, err = m.attemptDownload(ctx, id, parent, absPath, remoteChecksum, onProgress)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			return "", fmt.Errorf("%w: item %s", ErrIntegrity, id)
		}

		return "", err
	}

	return m.relativize(absPath), nil
}

// resolveForCommit validates localPath, ensures its parent directory
// exists, and runs ResolveConflict (§4.4.3) against the resolved absolute
// path so two distinct remote items that sanitize to the same target never
// silently overwrite one another.
func (m *Materializer) resolveForCommit(localPath string) (string, error) {
	absPath := m.resolve(localPath)

	if err := pathguard.Validate(absPath, m.baseDir); err != nil {
		return "", fmt.Errorf("fileops: %w", err)
	}

	parent := filepath.Dir(absPath)
	if err := pathguard.EnsureContainedDir(parent, m.baseDir); err != nil {
		return "", fmt.Errorf("fileops: ensure parent dir: %w", err)
	}

	resolved, err := ResolveConflict(absPath)
	if err != nil {
		return "", fmt.Errorf("fileops: resolve conflict for %q: %w", localPath, err)
	}

	return resolved, nil
}

// relativize converts an absolute path back to the baseDir-relative form
// Item.LocalPath is stored in.
func (m *Materializer) relativize(absPath string) string {
	rel, err := filepath.Rel(m.baseDir, absPath)
	if err != nil {
		return absPath
	}

	return rel
}

// attemptDownload runs one end-to-end attempt of steps 2-6. The bool return
// reports whether this call itself was already a retry (always false here;
// retry orchestration lives in the caller), kept so future refinements can
// thread attempt count without changing the public signature.
func (m *Materializer) attemptDownload(
	ctx context.Context, id, parent, localPath, remoteChecksum string, onProgress driver.ProgressFunc,
) (bool, error) {
	tempPath := newTempPath(parent)

	if err := removeIfExists(tempPath); err != nil {
		return false, fmt.Errorf("fileops: clear stale temp %q: %w", tempPath, err)
	}

	hash, err := m.streamToTemp(ctx, tempPath, func(w io.Writer) error {
		return m.drv.DownloadBinary(ctx, id, w, onProgress)
	})
	if err != nil {
		_ = os.Remove(tempPath)
		return false, err
	}

	if remoteChecksum != "" && hash != remoteChecksum {
		_ = os.Remove(tempPath)
		return false, ErrIntegrity
	}

	if err := os.Rename(tempPath, localPath); err != nil {
		_ = os.Remove(tempPath)
		return false, fmt.Errorf("fileops: commit %q: %w", localPath, err)
	}

	return false, nil
}

// ExportAndCommit implements §4.4.6: same atomic-write skeleton as
// DownloadAndCommit, including conflict resolution, but no checksum
// available so no retry-on-mismatch stage. localPath is relative to
// baseDir; the returned localPath is too, and differs from the input only
// when ResolveConflict assigned a "base (N).ext" suffix.
func (m *Materializer) ExportAndCommit(
	ctx context.Context, id, targetMime, localPath string, onProgress driver.ProgressFunc,
) (string, error) {
	absPath, err := m.resolveForCommit(localPath)
	if err != nil {
		return "", err
	}

	parent := filepath.Dir(absPath)
	tempPath := newTempPath(parent)

	if err := removeIfExists(tempPath); err != nil {
		return "", fmt.Errorf("fileops: clear stale temp %q: %w", tempPath, err)
	}

	_, err = m.streamToTemp(ctx, tempPath, func(w io.Writer) error {
		return m.drv.ExportRendition(ctx, id, targetMime, w, onProgress)
	})
	if err != nil {
		_ = os.Remove(tempPath)
		return "", err
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("fileops: commit %q: %w", absPath, err)
	}

	return m.relativize(absPath), nil
}

// EnsureDirectory materializes a folder item: ensure the directory exists at
// localPath, relative to baseDir. Folders carry no content to verify
// (§4.4.4).
func (m *Materializer) EnsureDirectory(localPath string) error {
	return pathguard.EnsureContainedDir(m.resolve(localPath), m.baseDir)
}

// streamToTemp opens tempPath for write and invokes fetch with a writer that
// simultaneously streams to disk and feeds a running SHA-256 hash via
// io.MultiWriter in a single pass. Returns the hex-encoded digest.
func (m *Materializer) streamToTemp(_ context.Context, tempPath string, fetch func(io.Writer) error) (string, error) {
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) //nolint:mnd // standard file perms
	if err != nil {
		return "", fmt.Errorf("fileops: open temp %q: %w", tempPath, err)
	}
	defer f.Close()

	hasher := sha256.New()
	w := io.MultiWriter(f, hasher)

	if err := fetch(w); err != nil {
		return "", fmt.Errorf("fileops: stream content: %w", err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("fileops: sync temp file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// newTempPath builds an unpredictable temp name under parent, per design
// §4.4.5 step 2 ("temp names must not be derivable from the final name").
func newTempPath(parent string) string {
	return filepath.Join(parent, uuid.NewString()+tempSuffix)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}

	return err
}
