package fileops_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/fileops"
)

func TestResolveConflictFreePathIsIdentity(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.pdf")

	got, err := fileops.ResolveConflict(target)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestResolveConflictSuffixesOnCollision(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	got, err := fileops.ResolveConflict(target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "report (1).pdf"), got)
}

func TestResolveConflictFindsNextFreeSlot(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report (1).pdf"), []byte("x"), 0o644))

	got, err := fileops.ResolveConflict(target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "report (2).pdf"), got)
}

func TestResolveConflictNoExtension(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	got, err := fileops.ResolveConflict(target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "README (1)"), got)
}
