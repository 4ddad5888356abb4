package dispatchmodel

import (
	"encoding/json"
	"time"
)

// EventMetadata carries causal linkage for an event.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// Event is the caller-supplied payload handed to the bus's Publish call.
type Event struct {
	StreamID  string          `json:"stream_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Metadata  EventMetadata   `json:"metadata"`
	Context   ContextFrame    `json:"context"`
}

// StoredEvent is an Event after it has been assigned identity and a
// stream-relative version by the bus.
type StoredEvent struct {
	Event
	EventID   string    `json:"event_id"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// EventResponse is returned from Publish/PublishBatch; it is the
// idempotent, caller-facing summary of a StoredEvent.
type EventResponse struct {
	EventID   string    `json:"event_id"`
	StreamID  string    `json:"stream_id"`
	Version   uint64    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Deferred  bool      `json:"deferred,omitempty"`
}

func (s StoredEvent) Response(deferred bool) EventResponse {
	return EventResponse{
		EventID:   s.EventID,
		StreamID:  s.StreamID,
		Version:   s.Version,
		Timestamp: s.Timestamp,
		Deferred:  deferred,
	}
}
