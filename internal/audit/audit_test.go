package audit

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []Event
}

func (w *recordingWriter) Write(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, ev)
	return nil
}

func (w *recordingWriter) snapshot() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

func TestQueueSinkDrainsAllEmittedEvents(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := NewQueueSink(w, 16, logger)

	for i := 0; i < 5; i++ {
		sink.Emit(Event{
			EventID:    "evt-" + string(rune('a'+i)),
			EventType:  MutationExecuted,
			OccurredAt: time.Now(),
			Role:       "support_agent",
			TenantID:   "acme",
			Action:     "updateTicket",
		})
	}
	sink.Close()

	require.Len(t, w.snapshot(), 5)
}

func TestQueueSinkDropsWhenFull(t *testing.T) {
	w := &recordingWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &QueueSink{ch: make(chan Event), writer: w, logger: logger, done: make(chan struct{})}
	// No drain goroutine running: the channel has zero buffer, so Emit
	// must not block even though nothing is reading.
	sink.Emit(Event{EventID: "dropped"})
	assert.Empty(t, w.snapshot())
}

func TestNopSinkDiscardsEverything(t *testing.T) {
	var s Sink = NopSink{}
	s.Emit(Event{EventID: "x"})
}
