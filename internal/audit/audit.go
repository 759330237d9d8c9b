// Package audit defines the event contract produced to the audit sink
// (spec 6, "Audit event contract"). The sink itself — whatever system
// ultimately persists or forwards these events (a log shipper, a SIEM
// integration) — is an external collaborator; this package only fixes
// the event shape and provides a minimal fire-and-forget queue that
// writer-side backends can sit behind.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"
)

// EventType is the closed set of audit event kinds.
type EventType string

const (
	ToolCalled          EventType = "tool_called"
	QueryExecuted       EventType = "query_executed"
	MutationExecuted    EventType = "mutation_executed"
	ApprovalRequested   EventType = "approval_requested"
	ApprovalGranted     EventType = "approval_granted"
	ApprovalDenied      EventType = "approval_denied"
	AuthorizationDenied EventType = "authorization_denied"
	QueryFailed         EventType = "query_failed"
)

// Event is one audit record. Field names are part of the public
// contract (spec 6): external consumers read these verbatim.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Role          string          `json:"role"`
	TenantID      string          `json:"tenant_id"`
	Action        string          `json:"action"`
	SQL           string          `json:"sql,omitempty"`
	RowCount      *int            `json:"row_count,omitempty"`
	DurationMS    *int64          `json:"duration_ms,omitempty"`
	Arguments     map[string]any  `json:"arguments,omitempty"`
	BeforeState   map[string]any  `json:"before_state,omitempty"`
	AfterState    map[string]any  `json:"after_state,omitempty"`
	ParentEventID string         `json:"parent_event_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Sink accepts audit events. Emit must not block the caller on I/O —
// implementations that write somewhere slow (disk, network) should
// queue internally, matching the "audit sink (append-only, writer-side
// queue)" resource in spec 5.
type Sink interface {
	Emit(Event)
}

// NopSink discards every event. Used where no sink is configured (e.g.
// in tests, or tool-synthesis-only invocations that never touch data).
type NopSink struct{}

func (NopSink) Emit(Event) {}

// QueueSink is a bounded, buffered, fire-and-forget sink: Emit enqueues
// and returns immediately; a single background goroutine drains the
// queue into an underlying Writer. Events are dropped (and logged) if
// the queue is full rather than blocking the caller — the audit trail
// is best-effort from the hot path's point of view, matching spec 5's
// "writer-side queue" shared resource.
type QueueSink struct {
	ch     chan Event
	writer Writer
	logger *slog.Logger
	done   chan struct{}
}

// Writer persists one event. Implementations might append to a file,
// ship to a log aggregator, or write to a database table; this package
// only defines the interface the queue drains into.
type Writer interface {
	Write(Event) error
}

// NewQueueSink starts the background drain goroutine and returns a
// ready sink. capacity bounds how many events may be buffered before
// Emit starts dropping.
func NewQueueSink(writer Writer, capacity int, logger *slog.Logger) *QueueSink {
	if capacity <= 0 {
		capacity = 256
	}
	s := &QueueSink{
		ch:     make(chan Event, capacity),
		writer: writer,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *QueueSink) drain() {
	defer close(s.done)
	for ev := range s.ch {
		if err := s.writer.Write(ev); err != nil {
			s.logger.Warn("failed to write audit event", "event_id", ev.EventID, "event_type", ev.EventType, "error", err)
		}
	}
}

// Emit enqueues ev for writing. If the queue is full, the event is
// dropped and a warning is logged rather than blocking the caller.
func (s *QueueSink) Emit(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.logger.Warn("audit queue full, dropping event", "event_id", ev.EventID, "event_type", ev.EventType)
	}
}

// Close stops accepting new events and waits for the queue to drain.
func (s *QueueSink) Close() {
	close(s.ch)
	<-s.done
}

// MarshalSummary renders ev's arguments/before/after state as a single
// compact JSON string, useful for structured log lines that embed the
// event without double-encoding nested maps.
func MarshalSummary(ev Event) string {
	b, err := json.Marshal(ev)
	if err != nil {
		return `{"error":"failed to marshal audit event"}`
	}
	return string(b)
}
