package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivemirror/internal/config"
	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/engine"
	"github.com/tonimelisma/drivemirror/internal/events"
	"github.com/tonimelisma/drivemirror/internal/fileops"
	"github.com/tonimelisma/drivemirror/internal/metastore"
	"github.com/tonimelisma/drivemirror/internal/retry"
	"github.com/tonimelisma/drivemirror/internal/testsupport"
)

func newSyncCmd() *cobra.Command {
	var flagResume bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle against the configured drive",
		Long: `Run a one-shot sync cycle: reconcile the remote listing against the local
mirror and MetaStore, then download everything Pending.

There is no bundled production Remote Driver (design treats it as an
external collaborator, out of scope) — this command drives the engine
against a small built-in fixture so the full pipeline can be exercised
end-to-end without credentials. A deployment wires a real driver.Driver
implementation in place of runDemoDriver.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), flagResume)
		},
	}

	cmd.Flags().BoolVar(&flagResume, "resume", false, "resume an interrupted run instead of starting a new one")

	return cmd
}

func runSync(ctx context.Context, resume bool) error {
	cc := cliContextFrom(ctx)
	cfg, logger := cc.Cfg, cc.Logger

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := metastore.Open(statePath(cfg.BaseDirectory), logger)
	if err != nil {
		return fmt.Errorf("opening metastore: %w", err)
	}
	defer store.Close()

	drv := runDemoDriver()

	resolver := fileops.NewPathResolver(store, cfg.ExportFormats, config.DefaultExportExtensions())
	policy := retry.NewPolicy(cfg.RetryAttempts, time.Duration(cfg.RetryBaseDelaySeconds)*time.Second, logger)
	reconciler := engine.NewReconciler(store, drv, policy, resolver, cfg.BaseDirectory, cfg.DeleteRemovedFiles, logger)
	materializer := fileops.NewMaterializer(cfg.BaseDirectory, drv)

	newDownloader := func(bus *events.Bus) *engine.Downloader {
		return engine.NewDownloader(store, materializer, bus, cfg.ExportFormats, cfg.MaxConcurrentDownloads, logger)
	}

	controller := engine.NewController(store, reconciler, newDownloader, logger)

	var stream <-chan events.Event

	switch {
	case resume:
		stream = controller.ResumeSync(ctx)
	default:
		if cur, _ := store.GetCursor(ctx); cur != nil {
			stream = controller.IncrementalSync(ctx)
		} else {
			stream = controller.InitialSync(ctx)
		}
	}

	return renderEvents(stream)
}

// renderEvents drains the event stream, printing a progress line per
// FileDownloading and a summary on the terminal Completed/Failed event,
// following the printSyncText approach of a compact end-of-run
// report rather than raw event dumping.
func renderEvents(stream <-chan events.Event) error {
	for ev := range stream {
		switch e := ev.(type) {
		case events.Started:
			statusf("Sync started (run %d)\n", e.RunID)
		case events.DiscoveringFiles:
			statusf("Found %d item(s) to reconcile\n", e.FilesFound)
		case events.FileDownloading:
			if e.TotalBytes != nil {
				progressf("  %-40s %s / %s", e.Name, formatBytes(e.BytesDownloaded), formatBytes(*e.TotalBytes))
			}
		case events.FileFailed:
			statusf("  FAILED  %s: %s\n", e.Name, e.Error)
		case events.Completed:
			statusf("\nSync complete: %d file(s), %s downloaded, %d failed (%s)\n",
				e.FilesProcessed, formatBytes(e.BytesDownloaded), e.FailedFiles, formatDuration(e.Duration))
		case events.Failed:
			return fmt.Errorf("sync: %s", e.Error)
		}
	}

	return nil
}

// runDemoDriver builds the small built-in fixture this demo command drives
// the engine against: a root-level readme and a nested folder with one
// file, enough to exercise folder-before-file ordering (§4.5).
func runDemoDriver() driver.Driver {
	drv := testsupport.NewFakeDriver()
	drv.SetCursor("demo-cursor-0")

	readme := []byte("drivemirror demo mirror\n")
	nested := []byte("hello from a nested file\n")

	drv.SetItems([]driver.ItemDescriptor{
		{ID: "demo-readme", Name: "README.txt", Kind: driver.KindBinary, Checksum: testsupport.ChecksumOf(readme), Size: sizePtr(int64(len(readme))), ModifiedAt: time.Now()},
		{ID: "demo-folder", Name: "Documents", Kind: driver.KindFolder, ModifiedAt: time.Now()},
		{ID: "demo-nested", Name: "notes.txt", ParentID: "demo-folder", Kind: driver.KindBinary, Checksum: testsupport.ChecksumOf(nested), Size: sizePtr(int64(len(nested))), ModifiedAt: time.Now()},
	})
	drv.SetBinary("demo-readme", readme)
	drv.SetBinary("demo-nested", nested)

	return drv
}

func sizePtr(v int64) *int64 { return &v }
