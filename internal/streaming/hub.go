package streaming

import "context"

// Event types published by the view controller.
const (
	EventSubjectLoaded     = "subject.loaded"
	EventDiagramRecomputed = "diagram.recomputed"
	EventSubjectFailed     = "subject.failed"
)

// StreamEvent is a real-time event emitted when a session's diagram changes.
// Payload carries the recomputed diagram (or the failure) as pass-through
// data for the rendering substrate.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	Subject   string `json:"subject,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time diagram events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
