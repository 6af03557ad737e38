// Package testsupport provides a fake Remote Driver and related fixtures
// standing in for the external collaborator described in §6.1,
// mirroring how the prior engine's testutil package and internal/graph test
// doubles isolate the sync engine from the real Graph API in tests.
package testsupport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tonimelisma/drivemirror/internal/driver"
)

// BinaryFixture is the scripted content for one binary item's download,
// supporting scenario 2's "writes wrong bytes both attempts" behavior via
// Attempts.
type BinaryFixture struct {
	Content []byte
	// Attempts, if non-empty, overrides Content per call index (0-based:
	// Attempts[0] serves the first call);
	// the last entry repeats for any further call. Used to script a
	// persistently-wrong-bytes download for checksum-mismatch tests.
	Attempts [][]byte
	Err      error
}

// FakeDriver is a configurable driver.Driver used across fileops and engine
// tests. All state is guarded by mu so it is safe under the Downloader's
// concurrent workers.
type FakeDriver struct {
	mu sync.Mutex

	authenticated bool
	cursor        string

	items       []driver.ItemDescriptor
	deltaPages  []driver.DeltaPage
	deltaCalled int

	binaries  map[string]*BinaryFixture
	renditons map[string][]byte

	callCounts      map[string]int
	concurrentNow   atomic.Int32
	concurrentPeak  atomic.Int32
	downloadLatency chan struct{} // not read by any method: DownloadBinary returns without waiting
}

// NewFakeDriver constructs an authenticated fake driver with an empty
// fixture set.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		authenticated: true,
		binaries:      make(map[string]*BinaryFixture),
		renditons:     make(map[string][]byte),
		callCounts:    make(map[string]int),
	}
}

// SetAuthenticated configures the IsAuthenticated response.
func (f *FakeDriver) SetAuthenticated(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authenticated = v
}

// SetCursor configures the CurrentCursor response.
func (f *FakeDriver) SetCursor(cursor string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cursor = cursor
}

// SetItems configures the ListAll snapshot.
func (f *FakeDriver) SetItems(items []driver.ItemDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = items
}

// QueueDeltaPage appends a page to be returned by successive ListChanges
// calls, in order.
func (f *FakeDriver) QueueDeltaPage(page driver.DeltaPage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deltaPages = append(f.deltaPages, page)
}

// SetBinary registers the content DownloadBinary streams for id.
func (f *FakeDriver) SetBinary(id string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.binaries[id] = &BinaryFixture{Content: content}
}

// SetBinaryFixture registers a full BinaryFixture (multi-attempt content or
// a forced error) for id.
func (f *FakeDriver) SetBinaryFixture(id string, fixture *BinaryFixture) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.binaries[id] = fixture
}

// SetRendition registers the content ExportRendition streams for id.
func (f *FakeDriver) SetRendition(id string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.renditons[id] = content
}

// ChecksumOf computes the hex SHA-256 digest this package's
// fileops.Materializer would verify against, so tests can set
// ItemDescriptor.Checksum consistently.
func ChecksumOf(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CallCount returns how many times method has been invoked.
func (f *FakeDriver) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.callCounts[method]
}

// PeakConcurrentDownloads returns the maximum number of DownloadBinary
// calls observed running simultaneously, for the concurrency-ceiling test
// (seed scenario 6).
func (f *FakeDriver) PeakConcurrentDownloads() int32 {
	return f.concurrentPeak.Load()
}

func (f *FakeDriver) recordCall(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callCounts[method]++
}

// IsAuthenticated implements driver.Driver.
func (f *FakeDriver) IsAuthenticated(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.authenticated, nil
}

// Authenticate implements driver.Driver.
func (f *FakeDriver) Authenticate(_ context.Context, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authenticated = true

	return nil
}

// CurrentCursor implements driver.Driver.
func (f *FakeDriver) CurrentCursor(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.cursor, nil
}

// ListAll implements driver.Driver.
func (f *FakeDriver) ListAll(_ context.Context, _ []string) ([]driver.ItemDescriptor, error) {
	f.recordCall("ListAll")

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]driver.ItemDescriptor, len(f.items))
	copy(out, f.items)

	return out, nil
}

// ListChanges implements driver.Driver, returning queued pages in order.
func (f *FakeDriver) ListChanges(_ context.Context, _ string) (*driver.DeltaPage, error) {
	f.recordCall("ListChanges")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deltaCalled >= len(f.deltaPages) {
		return &driver.DeltaPage{NextCursor: f.cursor}, nil
	}

	page := f.deltaPages[f.deltaCalled]
	f.deltaCalled++

	return &page, nil
}

// DownloadBinary implements driver.Driver, tracking concurrency for the
// ceiling test and supporting scripted multi-attempt content.
func (f *FakeDriver) DownloadBinary(_ context.Context, id string, w io.Writer, onProgress driver.ProgressFunc) error {
	now := f.concurrentNow.Add(1)
	defer f.concurrentNow.Add(-1)

	for {
		peak := f.concurrentPeak.Load()
		if now <= peak || f.concurrentPeak.CompareAndSwap(peak, now) {
			break
		}
	}

	f.mu.Lock()
	fixture, ok := f.binaries[id]
	attemptIdx := f.callCounts["DownloadBinary:"+id]
	f.callCounts["DownloadBinary:"+id]++
	f.mu.Unlock()

	f.recordCall("DownloadBinary")

	if !ok {
		return driver.NewNotFound(fmt.Sprintf("no fixture for id %s", id), nil)
	}

	if fixture.Err != nil {
		return fixture.Err
	}

	content := fixture.Content
	if len(fixture.Attempts) > 0 {
		idx := attemptIdx
		if idx >= len(fixture.Attempts) {
			idx = len(fixture.Attempts) - 1
		}

		content = fixture.Attempts[idx]
	}

	total := int64(len(content))
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("fake driver: write: %w", err)
	}

	if onProgress != nil {
		onProgress(total, &total)
	}

	return nil
}

// ExportRendition implements driver.Driver.
func (f *FakeDriver) ExportRendition(
	_ context.Context, id, _ string, w io.Writer, onProgress driver.ProgressFunc,
) error {
	f.recordCall("ExportRendition")

	f.mu.Lock()
	content, ok := f.renditons[id]
	f.mu.Unlock()

	if !ok {
		return driver.NewNotFound(fmt.Sprintf("no rendition fixture for id %s", id), nil)
	}

	total := int64(len(content))
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("fake driver: write: %w", err)
	}

	if onProgress != nil {
		onProgress(total, &total)
	}

	return nil
}

var _ driver.Driver = (*FakeDriver)(nil)
