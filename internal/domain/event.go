package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventProjectCreated EventType = "project.created"
	EventProjectUpdated EventType = "project.updated"
	EventProjectDeleted EventType = "project.deleted"

	EventGraphCreated EventType = "graph.created"
	EventGraphUpdated EventType = "graph.updated"
	EventGraphDeleted EventType = "graph.deleted"

	EventAgentUpserted EventType = "agent.upserted"
	EventAgentDeleted  EventType = "agent.deleted"

	EventToolUpserted      EventType = "tool.upserted"
	EventToolDeleted       EventType = "tool.deleted"
	EventToolHealthChanged EventType = "tool.health.changed"

	EventCredentialUpserted EventType = "credential.upserted"
	EventCredentialDeleted  EventType = "credential.deleted"

	EventContextConfigUpserted EventType = "context_config.upserted"
	EventContextInvalidated    EventType = "context_cache.invalidated"
)

// Event is the envelope published on the event bus and forwarded to
// connected dashboard clients.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	TenantID  string          `json:"tenant_id,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	GraphID   string          `json:"graph_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish builds a scoped event envelope and sends it to all matching
	// subscribers. The payload is marshaled best effort; a payload that
	// fails to marshal is dropped and the event goes out without one.
	Publish(ctx context.Context, eventType EventType, scopes Scopes, payload any)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
