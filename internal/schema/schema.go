package schema

import (
	"context"

	"dealtrail/internal/config"
)

// ISchemaGenerator creates the core tables and, when the change feed is on,
// the changelog tables and triggers that mirror writes into them.
type ISchemaGenerator interface {
	GenerateSchema(ctx context.Context) error
	GenerateTriggers(ctx context.Context) error
	Start(ctx context.Context) error
	Drop() error
	GetConfig() config.SchemaConfig
}

// WatchedTables are the tables mirrored into the change feed.
var WatchedTables = []string{"events", "tasks"}
