package events

import "context"

// DefaultBufferSize sizes the event channel so ordinary bursts of
// FileQueued/FileCompleted don't immediately contend with a slow consumer.
const DefaultBufferSize = 256

// Bus is a single-producer, single-consumer event channel. Lifecycle events
// (Started, FileQueued, FileCompleted, FileFailed, Completed, Failed) are
// delivered with a blocking send; Progress and FileDownloading byte-count
// updates are offered non-blockingly and may be dropped under consumer
// backpressure (the Downloader sends each item's first FileDownloading,
// before any bytes arrive, with a blocking send), following
// the prior engine's WorkerPool.sendResult select-with-ctx.Done pattern,
// generalized with a non-blocking arm for coalescible events (§5).
type Bus struct {
	ch chan Event
}

// NewBus constructs a Bus with the given buffer size. size <= 0 uses
// DefaultBufferSize.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}

	return &Bus{ch: make(chan Event, size)}
}

// Events returns the receive-only channel consumers read from.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the underlying channel. Must be called exactly once, after
// the terminal Completed/Failed event has been sent.
func (b *Bus) Close() {
	close(b.ch)
}

// SendBlocking delivers a lifecycle event, blocking until the consumer
// receives it or ctx is canceled.
func (b *Bus) SendBlocking(ctx context.Context, ev Event) {
	select {
	case b.ch <- ev:
	case <-ctx.Done():
	}
}

// SendCoalescible offers a Progress/FileDownloading event without blocking;
// if the consumer is not ready to receive, the event is silently dropped.
func (b *Bus) SendCoalescible(ev Event) {
	select {
	case b.ch <- ev:
	default:
	}
}
