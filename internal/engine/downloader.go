// Package engine implements the Downloader, Reconciler, and SyncController
// components (§4.5–§4.7), grounded on the prior internal/sync
// worker pool, delta-to-mutation translation, and Engine.RunOnce cycle.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivemirror/internal/driver"
	"github.com/tonimelisma/drivemirror/internal/events"
	"github.com/tonimelisma/drivemirror/internal/fileops"
	"github.com/tonimelisma/drivemirror/internal/metastore"
)

// maxRecordedErrors bounds the Downloader's in-memory diagnostic error list
// (supplemented feature, grounded on the prior engine's
// WorkerPool.recordFailure/DroppedErrors cap), preventing unbounded growth
// on pathological runs with very many failing items. Per-item errorMessage
// persisted to MetaStore is never truncated.
const maxRecordedErrors = 1000

// RecordedError is one diagnostic entry in the Downloader's bounded error
// list.
type RecordedError struct {
	ItemID metastore.ItemID
	Name   string
	Err    error
}

// Downloader drains the pending set concurrently under a permit ceiling,
// materializing folders before files so child writes never race ahead of
// parent directory creation (§4.5). Grounded on the prior engine's
// internal/sync/worker.go WorkerPool: flat goroutine pool, atomic counters,
// panic recovery per item, generalized from its dependency-tracker dispatch
// to a simpler two-pass (folders, then files) drain. The worker pool itself
// is an errgroup.Group with SetLimit, the idiom the wider example pack
// (e.g. OpenMined-syftbox) uses for bounded fan-out instead of a hand-rolled
// semaphore-plus-channel.
type Downloader struct {
	store         metastore.Store
	materializer  *fileops.Materializer
	maxConcurrent int
	bus           *events.Bus
	exportFormats map[string]string // sourceMime -> targetMime, from config
	logger        *slog.Logger

	mu             sync.Mutex
	recordedErrors []RecordedError
	droppedErrors  int64
}

// NewDownloader constructs a Downloader. maxConcurrent is the permit
// ceiling (config MaxConcurrentDownloads, §4.5).
func NewDownloader(
	store metastore.Store, materializer *fileops.Materializer, bus *events.Bus,
	exportFormats map[string]string, maxConcurrent int, logger *slog.Logger,
) *Downloader {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{
		store:         store,
		materializer:  materializer,
		maxConcurrent: maxConcurrent,
		bus:           bus,
		exportFormats: exportFormats,
		logger:        logger,
	}
}

// Drain materializes every item in items, folders first then files, each
// under a semaphore permit, and reports aggregate progress. filesProcessed
// and bytesDownloaded counters accrue across the whole call and are
// returned for the caller (SyncController) to persist into SyncRun.
func (d *Downloader) Drain(ctx context.Context, items []*metastore.Item, totalFiles int) (filesProcessed int, bytesDownloaded int64) {
	folders, files := splitByKind(items)

	fp, bd := d.drainGroup(ctx, folders, totalFiles, 0, 0)
	filesProcessed += fp
	bytesDownloaded += bd

	fp, bd = d.drainGroup(ctx, files, totalFiles, filesProcessed, bytesDownloaded)
	filesProcessed += fp
	bytesDownloaded += bd

	return filesProcessed, bytesDownloaded
}

// splitByKind partitions items into folders and non-folders, preserving
// relative order within each group.
func splitByKind(items []*metastore.Item) (folders, rest []*metastore.Item) {
	for _, item := range items {
		if item.Kind == metastore.KindFolder {
			folders = append(folders, item)
		} else {
			rest = append(rest, item)
		}
	}

	return folders, rest
}

// drainGroup fans items out over an errgroup.Group capped at maxConcurrent
// in-flight goroutines, waits for all to finish, and returns the
// processed/bytes deltas contributed by this group. Per-item failures are
// recorded and reported as events, never returned to the group — one bad
// item must not cancel the rest of the batch.
func (d *Downloader) drainGroup(
	ctx context.Context, items []*metastore.Item, totalFiles, startProcessed int, startBytes int64,
) (int, int64) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	var (
		progressMu     sync.Mutex
		processedCount int
		totalBytes     int64
	)

	for _, item := range items {
		item := item

		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("downloader: recovered from panic", slog.Any("panic", r), slog.String("item", string(item.ID)))
				}
			}()

			n, _ := d.processOne(gctx, item)

			progressMu.Lock()
			processedCount++
			totalBytes += n
			processed, bytes := startProcessed+processedCount, startBytes+totalBytes
			progressMu.Unlock()

			d.bus.SendCoalescible(events.Progress{
				FilesProcessed:  processed,
				TotalFiles:      totalFiles,
				BytesDownloaded: bytes,
			})

			return nil
		})
	}

	_ = g.Wait()

	return processedCount, totalBytes
}

// processOne runs the per-item state machine transition Pending/Downloading
// -> Complete/Error for a single item (§4.5 transition table).
func (d *Downloader) processOne(ctx context.Context, item *metastore.Item) (bytesWritten int64, ok bool) {
	d.bus.SendBlocking(ctx, events.FileDownloading{ID: string(item.ID), Name: item.Name})

	if err := d.store.UpdateState(ctx, item.ID, metastore.StateDownloading, nil, ""); err != nil {
		d.logger.Error("downloader: failed to mark item downloading", slog.String("item", string(item.ID)), slog.Any("error", err))
		return 0, false
	}

	var lastProgress int64

	onProgress := driver.ProgressFunc(func(bytesDone int64, totalBytes *int64) {
		lastProgress = bytesDone

		d.bus.SendCoalescible(events.FileDownloading{
			ID: string(item.ID), Name: item.Name, BytesDownloaded: bytesDone, TotalBytes: totalBytes,
		})
	})

	targetMime := d.exportFormats[item.MimeType]

	resolvedPath, err := d.materializer.Materialize(ctx, item, targetMime, onProgress, func(msg string) {
		d.logger.Warn("downloader: " + msg)
	})
	if err != nil {
		d.recordFailure(item, err)

		if stateErr := d.store.UpdateState(ctx, item.ID, metastore.StateError, nil, err.Error()); stateErr != nil {
			d.logger.Error("downloader: failed to record item error state", slog.String("item", string(item.ID)), slog.Any("error", stateErr))
		}

		d.bus.SendBlocking(ctx, events.FileFailed{ID: string(item.ID), Name: item.Name, Error: err.Error()})

		return 0, false
	}

	if resolvedPath != item.LocalPath {
		if pathErr := d.store.UpdateLocalPath(ctx, item.ID, resolvedPath); pathErr != nil {
			d.logger.Error("downloader: failed to persist conflict-resolved local path", slog.String("item", string(item.ID)), slog.Any("error", pathErr))
		}

		item.LocalPath = resolvedPath
	}

	now := time.Now()
	if err := d.store.UpdateState(ctx, item.ID, metastore.StateComplete, &now, ""); err != nil {
		d.logger.Error("downloader: failed to record item complete state", slog.String("item", string(item.ID)), slog.Any("error", err))
	}

	d.bus.SendBlocking(ctx, events.FileCompleted{ID: string(item.ID), Name: item.Name})

	if item.Size != nil {
		return *item.Size, true
	}

	return lastProgress, true
}

// recordFailure appends to the bounded diagnostic error list, tracking a
// dropped count once the cap is reached. Safe for concurrent use: items in
// the same group are processed by separate errgroup goroutines.
func (d *Downloader) recordFailure(item *metastore.Item, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.recordedErrors) >= maxRecordedErrors {
		d.droppedErrors++
		return
	}

	d.recordedErrors = append(d.recordedErrors, RecordedError{ItemID: item.ID, Name: item.Name, Err: err})
}

// Errors returns the bounded diagnostic error list accumulated so far.
func (d *Downloader) Errors() []RecordedError {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]RecordedError(nil), d.recordedErrors...)
}

// DroppedErrors returns how many failures exceeded the recorded-error cap.
func (d *Downloader) DroppedErrors() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.droppedErrors
}

