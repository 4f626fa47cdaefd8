package ports

import (
	"context"
	"time"

	"github.com/flowdhq/flowd/pkg/domain"
)

// EventType identifies what happened.
type EventType string

const (
	EventRunCreated      EventType = "run.created"
	EventRunStateChanged EventType = "run.state_changed"
	EventRunLate         EventType = "run.late"
	EventFlowSaved       EventType = "flow.saved"
	EventFlowDeleted     EventType = "flow.deleted"
)

// Event topics.
const (
	TopicRuns  = "runs"
	TopicFlows = "flows"
)

// Event is one engine occurrence published on the bus.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	RunKind   domain.RunKind `json:"run_kind,omitempty"`
	FlowID    string         `json:"flow_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventHandler consumes one event. A non-nil error leaves redelivery to
// the bus implementation.
type EventHandler func(ctx context.Context, event Event) error

// EventBus fans events out to topic subscribers.
type EventBus interface {
	// Publish delivers the event to all current subscribers of topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe registers a handler for a topic. The subscription ends
	// when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error

	// Unsubscribe removes all subscriptions from a topic.
	Unsubscribe(ctx context.Context, topic string) error

	// Close shuts the bus down.
	Close() error
}
