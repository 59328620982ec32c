package model

import "time"

// EventType enumerates delivery-lifecycle events for the append-only log.
type EventType string

const (
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventReplied      EventType = "replied"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
)

// EmailEvent is one entry in the append-only delivery log. Immutable once
// written; the (message id, event type) pair dedups redelivered webhooks.
type EmailEvent struct {
	ID              string    `json:"id"`
	LeadID          string    `json:"lead_id"`
	EventType       EventType `json:"event_type"`
	Subject         string    `json:"subject"`
	SequenceStep    int       `json:"sequence_step"`
	SequenceVariant Variant   `json:"sequence_variant,omitempty"`
	MessageID       string    `json:"message_id,omitempty"` // provider message id
	Metadata        string    `json:"metadata,omitempty"`   // e.g. bounce reason, clicked URL
	CreatedAt       time.Time `json:"created_at"`
}

// UnsubscribeToken is a one-time-use secret mailed to a lead. Created lazily,
// marked used exactly once.
type UnsubscribeToken struct {
	ID        string     `json:"id"`
	LeadID    string     `json:"lead_id"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}
