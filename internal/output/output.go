package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
)

// IOutput receives the change records relayed from the changelog tables.
// channelName is the watched table ("events", "tasks").
type IOutput interface {
	PushChange(ctx context.Context, change domain.ChangeRecord, channelName string) error
	Close() error
}

// ChannelName maps a watched table onto its configured topic.
func ChannelName(cfg config.OutputConfig, table string) string {
	if topic, ok := cfg.TableChannel[table]; ok && topic != "" {
		return topic
	}
	return table
}

// eventRowImage is the JSON image of an events row as written by the
// changelog triggers.
type eventRowImage struct {
	Seq           int64           `json:"seq"`
	ID            string          `json:"id"`
	TransactionID *string         `json:"transaction_id"`
	ContactID     *string         `json:"contact_id"`
	Type          string          `json:"type"`
	ActorRole     string          `json:"actor_role"`
	ActorID       string          `json:"actor_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     string          `json:"created_at"`
}

// Postgres row_to_json and the SQLite driver render timestamps differently.
var rowTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// DecodeEvent rebuilds the domain event from an events changelog record.
func DecodeEvent(change domain.ChangeRecord) (domain.Event, error) {
	var row eventRowImage
	if err := json.Unmarshal(change.Data, &row); err != nil {
		return domain.Event{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if row.ID == "" || row.Type == "" {
		return domain.Event{}, fmt.Errorf("change %d is not an event row", change.ID)
	}
	ev := domain.Event{
		ID:        row.ID,
		Sequence:  row.Seq,
		Type:      domain.EventType(row.Type),
		ActorRole: domain.Role(row.ActorRole),
		ActorID:   row.ActorID,
		Payload:   map[string]any{},
	}
	if row.TransactionID != nil {
		ev.TransactionID = *row.TransactionID
	}
	if row.ContactID != nil {
		ev.ContactID = *row.ContactID
	}
	if len(row.Payload) > 0 && string(row.Payload) != "null" {
		if err := json.Unmarshal(row.Payload, &ev.Payload); err != nil {
			return domain.Event{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	for _, layout := range rowTimeLayouts {
		if t, err := time.Parse(layout, row.CreatedAt); err == nil {
			ev.CreatedAt = t.UTC()
			break
		}
	}
	return ev, nil
}

// AggregateOf returns the aggregate a change belongs to, when the row image
// names one.
func AggregateOf(change domain.ChangeRecord) (domain.Aggregate, bool) {
	var row struct {
		TransactionID *string `json:"transaction_id"`
		ContactID     *string `json:"contact_id"`
	}
	if err := json.Unmarshal(change.Data, &row); err != nil {
		return domain.Aggregate{}, false
	}
	switch {
	case row.TransactionID != nil && *row.TransactionID != "":
		return domain.TransactionAggregate(*row.TransactionID), true
	case row.ContactID != nil && *row.ContactID != "":
		return domain.ContactAggregate(*row.ContactID), true
	default:
		return domain.Aggregate{}, false
	}
}
