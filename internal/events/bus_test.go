package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/events"
)

func TestSendBlockingDeliversEvent(t *testing.T) {
	bus := events.NewBus(1)

	go bus.SendBlocking(context.Background(), events.Started{RunID: 1})

	select {
	case ev := <-bus.Events():
		started, ok := ev.(events.Started)
		require.True(t, ok)
		assert.Equal(t, int64(1), started.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSendBlockingRespectsCancellation(t *testing.T) {
	bus := events.NewBus(1)
	bus.SendCoalescible(events.Progress{}) // fill the only slot; there is no reader
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		bus.SendBlocking(ctx, events.Started{RunID: 1})
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendBlocking did not return after cancellation")
	}
}

func TestSendCoalescibleDropsWhenFull(t *testing.T) {
	bus := events.NewBus(1)

	bus.SendCoalescible(events.Progress{FilesProcessed: 1})
	bus.SendCoalescible(events.Progress{FilesProcessed: 2}) // dropped, channel full

	ev := <-bus.Events()
	p, ok := ev.(events.Progress)
	require.True(t, ok)
	assert.Equal(t, 1, p.FilesProcessed)
}

func TestEventVariantsSatisfyInterface(t *testing.T) {
	var evs []events.Event = []events.Event{
		events.Started{},
		events.DiscoveringFiles{},
		events.FileQueued{},
		events.FileDownloading{},
		events.FileCompleted{},
		events.FileFailed{},
		events.Progress{},
		events.Completed{},
		events.Failed{},
	}

	assert.Len(t, evs, 9)
}
