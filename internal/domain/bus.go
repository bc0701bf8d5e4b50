package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require firmID for strict per-firm isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, firmID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, firmID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	FirmID    string            `json:"firmId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the assessment pipeline.
const (
	// TopicCaseChanged triggers a re-assessment when case data changes
	// (document uploaded, form saved, checklist edited).
	TopicCaseChanged = "kestrel.case.changed"

	// TopicAssessmentCompleted carries every finished assessment.
	TopicAssessmentCompleted = "kestrel.assessment.completed"

	// TopicHighRisk carries assessments at high or critical level for
	// the notification layer.
	TopicHighRisk = "kestrel.assessment.highrisk"
)

// CaseChangedEvent is the payload on TopicCaseChanged.
type CaseChangedEvent struct {
	CaseID string `json:"caseId"`
	FirmID string `json:"firmId"`
	Reason string `json:"reason"` // e.g. "document_uploaded", "form_saved"
}
