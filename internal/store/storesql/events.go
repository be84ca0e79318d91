package storesql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
)

var eventsColumns = []string{
	"seq",
	"id",
	"transaction_id",
	"contact_id",
	"type",
	"actor_role",
	"actor_id",
	"payload",
	"created_at",
}

type eventRow struct {
	Seq           int64          `db:"seq"`
	ID            string         `db:"id"`
	TransactionID sql.NullString `db:"transaction_id"`
	ContactID     sql.NullString `db:"contact_id"`
	Type          string         `db:"type"`
	ActorRole     string         `db:"actor_role"`
	ActorID       string         `db:"actor_id"`
	Payload       []byte         `db:"payload"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r eventRow) toDomain() (domain.Event, error) {
	ev := domain.Event{
		ID:            r.ID,
		Sequence:      r.Seq,
		TransactionID: r.TransactionID.String,
		ContactID:     r.ContactID.String,
		Type:          domain.EventType(r.Type),
		ActorRole:     domain.Role(r.ActorRole),
		ActorID:       r.ActorID,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &ev.Payload); err != nil {
			return domain.Event{}, fmt.Errorf("decode payload of event %s: %w", r.ID, err)
		}
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev, nil
}

func (s *Storage) InsertEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("json.Marshal: %w", err)
	}
	query, args, err := squirrel.
		Insert(EventsTable).
		Columns(eventsColumns[1:]...).
		Values(
			event.ID,
			nullString(event.TransactionID),
			nullString(event.ContactID),
			string(event.Type),
			string(event.ActorRole),
			event.ActorID,
			string(payload),
			event.CreatedAt,
		).
		Suffix("RETURNING seq").
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return domain.Event{}, fmt.Errorf("squirrel.Insert: %w", err)
	}
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&event.Sequence); err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *Storage) SelectEvents(ctx context.Context, agg domain.Aggregate) ([]domain.Event, error) {
	column := "transaction_id"
	if agg.Kind == domain.AggregateContact {
		column = "contact_id"
	}
	query, args, err := squirrel.
		Select(eventsColumns...).
		From(EventsTable).
		Where(squirrel.Eq{column: agg.ID}).
		OrderBy("created_at", "seq").
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return nil, fmt.Errorf("squirrel.Select: %w", err)
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	res := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
