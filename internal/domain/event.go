package domain

import (
	"time"
)

type EventType string

// Event types of the default catalog.
const (
	EventOfferSubmitted           EventType = "OfferSubmitted"
	EventOfferAccepted            EventType = "OfferAccepted"
	EventOfferRejected            EventType = "OfferRejected"
	EventSystemTaskCompleted      EventType = "TaskCompleted"
	EventDocumentUploaded         EventType = "DocumentUploaded"
	EventTransactionStatusChanged EventType = "TransactionStatusChanged"
	EventMessageSent              EventType = "MessageSent"

	EventTaskCreated        EventType = "task.created"
	EventTaskAutoCreated    EventType = "task.auto_created"
	EventTaskAssigned       EventType = "task.assigned"
	EventTaskDueDateSet     EventType = "task.due_date_set"
	EventTaskStatusChanged  EventType = "task.status_changed"
	EventTaskCompleted      EventType = "task.completed"
	EventMilestoneReached   EventType = "milestone.reached"
	EventDeadlineCreated    EventType = "deadline.created"
	EventContactNoteAdded   EventType = "contact.note_added"
	EventContactStageChange EventType = "contact.stage_changed"
)

type AggregateKind string

const (
	AggregateTransaction AggregateKind = "transaction"
	AggregateContact     AggregateKind = "contact"
)

// Aggregate identifies the owner of an ordered event log.
type Aggregate struct {
	Kind AggregateKind
	ID   string
}

func TransactionAggregate(id string) Aggregate {
	return Aggregate{Kind: AggregateTransaction, ID: id}
}

func ContactAggregate(id string) Aggregate {
	return Aggregate{Kind: AggregateContact, ID: id}
}

// Key is the topic name of the aggregate on pub/sub channels.
func (a Aggregate) Key() string {
	return string(a.Kind) + ":" + a.ID
}

// ValidatedEvent is the canonical form returned by the validator.
type ValidatedEvent struct {
	Type    EventType
	Payload map[string]any
}

// Event is an immutable fact. Sequence is the log position assigned by the
// store and breaks ties between equal CreatedAt values.
type Event struct {
	ID            string         `json:"id" db:"id"`
	Sequence      int64          `json:"-" db:"seq"`
	TransactionID string         `json:"transaction_id,omitempty" db:"transaction_id"`
	ContactID     string         `json:"contact_id,omitempty" db:"contact_id"`
	Type          EventType      `json:"type" db:"type"`
	ActorRole     Role           `json:"actor_role" db:"actor_role"`
	ActorID       string         `json:"actor_id" db:"actor_id"`
	Payload       map[string]any `json:"payload" db:"-"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

func (e Event) Aggregate() Aggregate {
	if e.ContactID != "" && e.TransactionID == "" {
		return ContactAggregate(e.ContactID)
	}
	return TransactionAggregate(e.TransactionID)
}

// Before reports whether e precedes o in log order.
func (e Event) Before(o Event) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.Sequence < o.Sequence
}

// PayloadString returns payload[key] when it is a non-empty string.
func (e Event) PayloadString(key string) (string, bool) {
	v, ok := e.Payload[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// PayloadNumber returns payload[key] as float64 for any numeric encoding.
func (e Event) PayloadNumber(key string) (float64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}
