package domain

import "time"

type Emphasis string

const (
	EmphasisNormal    Emphasis = "normal"
	EmphasisImportant Emphasis = "important"
	EmphasisCritical  Emphasis = "critical"
)

// TimelineItem carries the id of whichever aggregate the event belongs to.
type TimelineItem struct {
	EventID        string    `json:"event_id"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	ContactID      string    `json:"contact_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Icon           string    `json:"icon,omitempty"`
	Emphasis       Emphasis  `json:"emphasis"`
	VisibleToRoles []Role    `json:"visible_to_roles"`
}
