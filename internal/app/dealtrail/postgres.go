package dealtrail

import (
	"context"
	"fmt"

	"dealtrail/internal/config"
	"dealtrail/internal/db/pg"
	"dealtrail/internal/db/sqlite"
	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// BootstrapDatabase opens the configured SQL database. The memory driver has
// no database and returns nil.
func BootstrapDatabase(ctx context.Context, dbCfg config.DatabaseConfig) (*sqlx.DB, squirrel.PlaceholderFormat, error) {
	driver, ok := domain.DriverNameToType[dbCfg.DriverName]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", dbCfg.DriverName, domain.ErrorUnknownDriverName)
	}
	switch driver {
	case domain.Postgres:
		db, err := BootstrapPostgres(ctx, dbCfg)
		return db, squirrel.Dollar, err
	case domain.SQLite:
		db, err := sqlite.Open(ctx, dbCfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite.Open: %w", err)
		}
		return db, squirrel.Question, nil
	default:
		return nil, nil, nil
	}
}

// BootstrapPostgres connects through pgx when the driver is named "pgx" and
// through lib/pq otherwise.
func BootstrapPostgres(ctx context.Context, dbCfg config.DatabaseConfig) (*sqlx.DB, error) {
	pgCfg := domainCfgToPostgres(dbCfg)
	if dbCfg.DriverName == pg.DriverPgx {
		conn, err := pg.GetPgxConnector(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("GetPgxConnector: %w", err)
		}
		return pg.GetSqlxConnector(conn, pg.DriverPgx), nil
	}
	conn, err := pg.GetPostgresConnector(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("GetPostgresConnector: %w", err)
	}
	return pg.GetSqlxConnector(conn, pg.DriverLibPQ), nil
}

func domainCfgToPostgres(db config.DatabaseConfig) *pg.PostgresConfig {
	return &pg.PostgresConfig{
		Host:         db.Host,
		Port:         db.Port,
		Database:     db.Database,
		User:         db.User,
		Password:     db.Password,
		SSLMode:      db.SSLMode,
		MaxOpenConns: db.MaxOpenConns,
		PingPeriod:   db.PingPeriod,
		PingTimeout:  db.PingTimeout,
	}
}
