// Package storesql implements the persistence collaborator on top of sqlx
// and squirrel. The same code serves Postgres (lib/pq or pgx) and SQLite;
// only the placeholder format differs.
package storesql

import (
	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const (
	EventsTable          = "events"
	TasksTable           = "tasks"
	DefaultDlqTable      = "dead_changes"
	DefaultStatusTable   = "change_feed_status"
	changelogTableSuffix = "_changelog"
)

// ChangelogTable is the changelog table that mirrors writes to table.
func ChangelogTable(table string) string {
	return table + changelogTableSuffix
}

type Storage struct {
	db       *sqlx.DB
	ph       squirrel.PlaceholderFormat
	dlqTable string
}

type Option func(*Storage)

// WithPlaceholder switches the bind variable style, squirrel.Question for SQLite.
func WithPlaceholder(ph squirrel.PlaceholderFormat) Option {
	return func(s *Storage) {
		s.ph = ph
	}
}

func WithDlqTable(table string) Option {
	return func(s *Storage) {
		s.dlqTable = table
	}
}

func NewStorage(db *sqlx.DB, opts ...Option) *Storage {
	s := &Storage{
		db:       db,
		ph:       squirrel.Dollar,
		dlqTable: DefaultDlqTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) DB() *sqlx.DB {
	return s.db
}
