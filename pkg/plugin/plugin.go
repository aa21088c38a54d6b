// Package plugin provides the SDK for turbinewatch sinks: components that
// consume cycle results and escalations from the event bus and deliver them
// somewhere (a broker, a webhook, the journal, dashboard clients).
package plugin

import (
	"context"
	"time"
)

// Sink is a result or notification channel managed by the registry.
type Sink interface {
	// Info returns the sink's metadata.
	Info() SinkInfo

	// Start connects the sink. Called once before any event is delivered.
	Start(ctx context.Context) error

	// Stop flushes and disconnects the sink.
	Stop(ctx context.Context) error
}

// SinkInfo contains sink metadata.
type SinkInfo struct {
	Name        string // Unique identifier: "mqtt", "webhook", "journal", ...
	Description string
	Required    bool // If true, the engine refuses to start without this sink
}

// EventSubscriber is implemented by sinks that receive bus events. The
// registry subscribes the handlers after Start succeeds and unsubscribes
// them before Stop.
type EventSubscriber interface {
	Subscriptions() []Subscription
}

// HealthChecker is optionally implemented by sinks that can report health.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus represents a sink's health report.
type HealthStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus composes Publisher and Subscriber with async and wildcard
// extensions.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Event represents a typed message on the event bus.
type Event struct {
	Topic     string
	Source    string // Component that emitted the event
	Timestamp time.Time
	Payload   any // Type depends on topic
}

// EventHandler processes events from the bus.
type EventHandler func(ctx context.Context, event Event)

// Subscription declares a topic subscription for EventSubscriber sinks.
type Subscription struct {
	Topic   string
	Handler EventHandler
}
