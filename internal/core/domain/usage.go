// Package domain defines the records the service persists and reports.
package domain

import "time"

// =============================================================================
// Usage Event Types
// =============================================================================

// EventType represents the type of usage event.
type EventType string

const (
	// EventToolInvoked is recorded for every executed tool call.
	// Dot notation matches the billing gateway's meter names.
	EventToolInvoked EventType = "tool.invoked"

	// EventCompletionProxied is recorded for every completion forwarded to a pod.
	EventCompletionProxied EventType = "completion.proxied"

	// EventAgentUsage is recorded by usage_logging_tool; the caller supplies
	// the concrete event name in metadata.
	EventAgentUsage EventType = "agent.usage"
)

// Resource types attached to meter events.
const (
	ResourceTool       = "tool"
	ResourcePod        = "pod"
	ResourceAgentUsage = "agent_usage"
)

// MeterEvent represents a usage event to be reported to the billing gateway.
// Events are stored locally and batch-reported.
type MeterEvent struct {
	ID           string            `json:"id" db:"id"`
	UserID       string            `json:"user_id" db:"user_id"`
	EventType    EventType         `json:"event_type" db:"event_type"`
	ResourceID   string            `json:"resource_id" db:"resource_id"`
	ResourceType string            `json:"resource_type" db:"resource_type"`
	Quantity     int64             `json:"quantity" db:"quantity"`
	Metadata     map[string]string `json:"metadata,omitempty" db:"-"`
	Timestamp    time.Time         `json:"timestamp" db:"timestamp"`

	// ReportedAt is nil until the event has been accepted by the gateway.
	ReportedAt *time.Time `json:"reported_at,omitempty" db:"reported_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// NewMeterEvent creates a new meter event with quantity 1.
func NewMeterEvent(id, userID string, eventType EventType, resourceID, resourceType string) MeterEvent {
	now := time.Now().UTC()
	return MeterEvent{
		ID:           id,
		UserID:       userID,
		EventType:    eventType,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Quantity:     1,
		Metadata:     make(map[string]string),
		Timestamp:    now,
		CreatedAt:    now,
	}
}

// WithMetadata adds metadata to the event and returns it for chaining.
// The receiver's map is copied so events built from a shared base stay independent.
func (e MeterEvent) WithMetadata(key, value string) MeterEvent {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// WithQuantity sets the quantity and returns the event for chaining.
func (e MeterEvent) WithQuantity(qty int64) MeterEvent {
	e.Quantity = qty
	return e
}

// IsReported returns true if the event has been reported.
func (e MeterEvent) IsReported() bool {
	return e.ReportedAt != nil
}
