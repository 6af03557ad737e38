package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// statePath derives the MetaStore location from baseDir, per §5:
// outside the mirror tree so re-syncing the mirror never touches state.
func statePath(baseDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(baseDir)), ".sync-state", "state.db")
}

// statusf prints a status message to stderr unless quiet mode is set,
// following the format.go statusf.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// progressf prints a transient progress line to stderr, overwriting itself
// via carriage return, shown only in verbose mode.
func progressf(format string, args ...any) {
	if flagVerbose && !flagQuiet {
		fmt.Fprintf(os.Stderr, "\r"+format, args...)
	}
}

// formatBytes renders a byte count the way a human expects, using
// go-humanize rather than a hand-rolled table (design carries no notion of
// size formatting itself — this is Command Surface demo territory, per
// SPEC_FULL.md §2).
func formatBytes(n int64) string {
	return humanize.Bytes(uint64(n)) //nolint:gosec // byte counts are never negative
}

// formatDuration renders a duration the way a human expects.
func formatDuration(d time.Duration) string {
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")
}
