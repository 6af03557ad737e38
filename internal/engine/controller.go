package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/tonimelisma/drivemirror/internal/events"
	"github.com/tonimelisma/drivemirror/internal/metastore"
)

// Controller is the SyncController (§4.7): entry points for
// Initial/Incremental/Resume, lifecycle of a SyncRun, and the emitter of
// the event stream. Grounded on the prior internal/sync/engine.go
// Engine.RunOnce nine-step cycle, generalized from its in-process
// SyncReport return value to an event-emitting sequence.
type Controller struct {
	store       metastore.Store
	reconciler  *Reconciler
	newDownload func(bus *events.Bus) *Downloader // factory: a fresh Downloader (and its bus-bound state) per run
	logger      *slog.Logger
}

// NewController constructs a Controller. newDownloader must return a fresh
// Downloader bound to the given bus for each run (a Downloader accumulates
// per-run diagnostic state, so it is not reused across runs).
func NewController(
	store metastore.Store, reconciler *Reconciler, newDownloader func(bus *events.Bus) *Downloader, logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{store: store, reconciler: reconciler, newDownload: newDownloader, logger: logger}
}

// runMode selects which Reconciler path a run takes.
type runMode int

const (
	modeInitial runMode = iota
	modeIncremental
	modeResume
)

// InitialSync runs a full remote snapshot sync and returns the event stream.
// The returned channel is closed after the terminal Completed/Failed event.
func (c *Controller) InitialSync(ctx context.Context) <-chan events.Event {
	return c.run(ctx, modeInitial)
}

// IncrementalSync runs a delta-based sync from the persisted cursor.
func (c *Controller) IncrementalSync(ctx context.Context) <-chan events.Event {
	return c.run(ctx, modeIncremental)
}

// ResumeSync inspects the latest run and either resumes in-flight work or
// falls through to Incremental (§4.6.3).
func (c *Controller) ResumeSync(ctx context.Context) <-chan events.Event {
	return c.run(ctx, modeResume)
}

// run drives one full SyncRun lifecycle in a background goroutine, per
// §4.7's eight-step cycle.
func (c *Controller) run(ctx context.Context, mode runMode) <-chan events.Event {
	bus := events.NewBus(events.DefaultBufferSize)

	go func() {
		defer bus.Close()
		c.runSync(ctx, mode, bus)
	}()

	return bus.Events()
}

func (c *Controller) runSync(ctx context.Context, mode runMode, bus *events.Bus) {
	startedAt := time.Now()

	if mode == modeResume {
		// Decide before this run's own Running record exists; LatestRun
		// would otherwise always report that record.
		_, resumed, err := c.reconciler.ResumeWork(ctx)
		if err != nil {
			c.fail(ctx, bus, 0, startedAt, err)
			return
		}

		if !resumed {
			mode = modeIncremental
		}
	}

	var startCursor string
	if cur, err := c.store.GetCursor(ctx); err == nil && cur != nil {
		startCursor = cur.Cursor
	}

	runID, err := c.store.CreateRun(ctx, startedAt, startCursor)
	if err != nil {
		c.fail(ctx, bus, 0, startedAt, fmt.Errorf("engine: create run: %w", err))
		return
	}

	bus.SendBlocking(ctx, events.Started{RunID: runID, Timestamp: startedAt})

	items, nextCursor, persistCursor, err := c.reconcile(ctx, mode)
	if err != nil {
		c.fail(ctx, bus, runID, startedAt, err)
		return
	}

	bus.SendBlocking(ctx, events.DiscoveringFiles{FilesFound: len(items)})

	for _, item := range items {
		var size *int64
		if item.Size != nil {
			size = item.Size
		}

		bus.SendBlocking(ctx, events.FileQueued{ID: string(item.ID), Name: item.Name, Size: size})
	}

	downloader := c.newDownload(bus)

	filesProcessed, bytesDownloaded := downloader.Drain(ctx, items, len(items))

	if err := c.store.UpdateRunProgress(ctx, runID, int64(filesProcessed), bytesDownloaded); err != nil {
		c.logger.Error("engine: failed to persist run progress", slog.Int64("run_id", runID), slog.Any("error", err))
	}

	if persistCursor && nextCursor != "" {
		if err := c.store.PutCursor(ctx, nextCursor, time.Now()); err != nil {
			c.fail(ctx, bus, runID, startedAt, fmt.Errorf("engine: persist cursor: %w", err))
			return
		}
	}

	runErrorMessage := summarizeItemErrors(downloader.Errors())

	if err := c.store.CompleteRun(ctx, runID, time.Now(), metastore.RunCompleted, runErrorMessage); err != nil {
		c.logger.Error("engine: failed to mark run completed", slog.Int64("run_id", runID), slog.Any("error", err))
	}

	if err := c.store.Checkpoint(ctx); err != nil {
		c.logger.Warn("engine: wal checkpoint failed", slog.Any("error", err))
	}

	failedFiles := len(downloader.Errors()) + int(downloader.DroppedErrors())

	bus.SendBlocking(ctx, events.Completed{
		FilesProcessed:  filesProcessed,
		BytesDownloaded: bytesDownloaded,
		FailedFiles:     failedFiles,
		Duration:        time.Since(startedAt),
	})
}

// reconcile dispatches to the Reconciler path selected by mode, returning
// the pending set to drain, the cursor to persist (if any), and whether
// that cursor should be persisted once the run completes (false for a
// resume that found in-flight work, since no new listing was performed).
func (c *Controller) reconcile(ctx context.Context, mode runMode) (items []*metastore.Item, nextCursor string, persistCursor bool, err error) {
	if mode == modeResume {
		resumeItems, resumed, rerr := c.reconciler.ResumeWork(ctx)
		if rerr != nil {
			return nil, "", false, rerr
		}

		if resumed {
			return resumeItems, "", false, nil
		}

		mode = modeIncremental
	}

	switch mode {
	case modeInitial:
		cursor, _, ierr := c.reconciler.Initial(ctx)
		if ierr != nil {
			return nil, "", false, ierr
		}

		pending, perr := c.store.ByState(ctx, metastore.StatePending)
		if perr != nil {
			return nil, "", false, fmt.Errorf("engine: load pending after initial: %w", perr)
		}

		return pending, cursor, true, nil

	case modeIncremental:
		cursor, _, ierr := c.reconciler.Incremental(ctx)
		if ierr != nil {
			return nil, "", false, ierr
		}

		pending, perr := c.store.ByState(ctx, metastore.StatePending)
		if perr != nil {
			return nil, "", false, fmt.Errorf("engine: load pending after incremental: %w", perr)
		}

		return pending, cursor, true, nil

	default:
		return nil, "", false, fmt.Errorf("engine: unknown run mode %d", mode)
	}
}

// summarizeItemErrors joins the Downloader's per-item diagnostic errors into
// a single multierr-combined message for SyncRun.ErrorMessage, without
// losing the individual causes, following the treatment of
// SyncReport.Errors as a collection distinct from a single fatal run error.
// Returns "" when there were no per-item failures.
func summarizeItemErrors(recorded []RecordedError) string {
	var combined error

	for _, re := range recorded {
		combined = multierr.Append(combined, fmt.Errorf("%s (%s): %w", re.Name, re.ItemID, re.Err))
	}

	if combined == nil {
		return ""
	}

	return combined.Error()
}

func (c *Controller) fail(ctx context.Context, bus *events.Bus, runID int64, startedAt time.Time, err error) {
	c.logger.Error("engine: run failed", slog.Any("error", err))

	if runID != 0 {
		if cerr := c.store.CompleteRun(ctx, runID, time.Now(), metastore.RunFailed, err.Error()); cerr != nil {
			c.logger.Error("engine: failed to mark run failed", slog.Int64("run_id", runID), slog.Any("error", cerr))
		}
	}

	bus.SendBlocking(ctx, events.Failed{Error: err.Error()})

	_ = startedAt
}

// Status is the pull-style snapshot backing getSyncStatus (§6.3).
type Status struct {
	LastSyncTime *time.Time
	TotalItems   int64
	TotalSize    int64
	PendingCount int64
	FailedCount  int64
}

// GetSyncStatus returns the current aggregate status, grounded on
// MetaStore.Statistics plus the latest completed run's timestamp.
func (c *Controller) GetSyncStatus(ctx context.Context) (*Status, error) {
	stats, err := c.store.Statistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: statistics: %w", err)
	}

	status := &Status{
		TotalItems:   stats.TotalItems,
		TotalSize:    stats.TotalSize,
		PendingCount: stats.PendingCount,
		FailedCount:  stats.ErrorCount,
	}

	latest, err := c.store.LatestRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: latest run: %w", err)
	}

	if latest != nil && latest.CompletedAt != nil {
		status.LastSyncTime = latest.CompletedAt
	}

	return status, nil
}

// GetFailedFiles returns items currently in syncState=Error (§6.3).
func (c *Controller) GetFailedFiles(ctx context.Context) ([]*metastore.Item, error) {
	items, err := c.store.ByState(ctx, metastore.StateError)
	if err != nil {
		return nil, fmt.Errorf("engine: by state error: %w", err)
	}

	return items, nil
}
