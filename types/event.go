package types

import "time"

// EventType classifies a canonical telemetry record.
type EventType string

const (
	EventStepStart EventType = "step_start"
	EventStepEnd   EventType = "step_end"
	EventToolCall  EventType = "tool_call"
	EventError     EventType = "error"
	// EventDegraded reports that the pipeline itself lost or mangled data:
	// hook failures, normalization failures, queue evictions, dropped batches.
	EventDegraded EventType = "degraded"
)

// Event is a single canonical telemetry record for one session.
//
// SequenceNumber is assigned atomically at normalization time and is strictly
// increasing per session regardless of which goroutine produced the event.
// The session id travels in the batch envelope, not in each event.
type Event struct {
	SessionID      string         `json:"-"`
	SequenceNumber uint64         `json:"sequence_number"`
	Type           EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Heartbeat is a liveness signal outside the event sequence stream.
type Heartbeat struct {
	SessionID string        `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
}

// Batch is an ordered group of events for one session, bounded by count and
// serialized byte size. It is the unit of transmission and of retry: a failed
// batch is retried as a whole, preserving its event order.
type Batch struct {
	SessionID string
	Events    []Event
	Bytes     int
}

// Len returns the number of events in the batch.
func (b *Batch) Len() int { return len(b.Events) }
