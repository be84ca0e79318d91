package domain

import (
	"encoding/json"
	"time"
)

type ChangeMethod string

const (
	InsertChange ChangeMethod = "INSERT"
	UpdateChange ChangeMethod = "UPDATE"
)

// ChangeRecord is one changelog row of the change feed: the full row image
// of an inserted or updated events/tasks row.
type ChangeRecord struct {
	ID        int64           `json:"id,omitempty" db:"id"`
	Table     string          `json:"table" db:"-"`
	Method    ChangeMethod    `json:"method,omitempty" db:"method"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	Data      json.RawMessage `json:"data,omitempty" db:"data"`
}

// ChangeTask is a unit of work handed from the feed producer to the consumer.
type ChangeTask struct {
	ID int64
}
