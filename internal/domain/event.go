package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event being published.
type EventType string

const (
	// Connection lifecycle.
	EventConnectionState EventType = "connection.state"
	EventDisconnected    EventType = "connection.disconnected"

	// Outbound calls.
	EventCallStarted   EventType = "call.started"
	EventCallCompleted EventType = "call.completed"
	EventCallFailed    EventType = "call.failed"
	EventCallRetrying  EventType = "call.retrying"

	// Inbound traffic.
	EventNotificationReceived EventType = "notification.received"
	EventPeerRequestReceived  EventType = "peer_request.received"
	EventDiagnostic           EventType = "diagnostic"

	// Resilience.
	EventCircuitStateChanged EventType = "circuit.state_changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type         EventType       `json:"type"`
	Timestamp    time.Time       `json:"timestamp"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// NewEvent stamps an event and encodes payload. A payload that cannot be
// encoded is dropped rather than failing the publisher.
func NewEvent(eventType EventType, connectionID string, payload any) Event {
	ev := Event{Type: eventType, Timestamp: time.Now(), ConnectionID: connectionID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// CallEventPayload describes an outbound call.
type CallEventPayload struct {
	Method     string `json:"method"`
	ID         string `json:"id,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// DisconnectedEventPayload describes the end of a connection.
type DisconnectedEventPayload struct {
	ExitCode *int   `json:"exit_code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Pending  int    `json:"pending"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for lifecycle events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
