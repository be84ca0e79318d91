package dealtrail

import (
	"fmt"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/schema"
	schemapg "dealtrail/internal/schema/pg"
	schemasqlite "dealtrail/internal/schema/sqlite"

	"github.com/jmoiron/sqlx"
)

// GetSchemaGeneratorByDriverName picks the schema generator matching the
// database driver.
func GetSchemaGeneratorByDriverName(db *sqlx.DB, name string, dbCfg config.DatabaseConfig) (schema.ISchemaGenerator, error) {
	driver, ok := domain.DriverNameToType[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrorUnknownDriverName)
	}
	sCfg := config.SchemaConfig{
		TableNames:          schema.WatchedTables,
		ChangelogTableNames: make(map[string]string),
	}
	switch driver {
	case domain.Postgres:
		return schemapg.NewSchemaGenerator(db, sCfg, dbCfg.ChangeFeed), nil
	case domain.SQLite:
		return schemasqlite.NewSchemaGenerator(db, sCfg, dbCfg.ChangeFeed), nil
	default:
		return nil, fmt.Errorf("%s has no schema: %w", name, domain.ErrorUnknownDriverName)
	}
}
