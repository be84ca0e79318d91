package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	DriverLibPQ = "postgres"
	DriverPgx   = "pgx"
)

type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         uint16 `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"-"`
	SSLMode      string
	MaxOpenConns int
	PingTimeout  time.Duration
	PingPeriod   time.Duration
}

func (cfg *PostgresConfig) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("user=%s dbname=%s password=%s host=%s port=%s sslmode=%s",
		cfg.User,
		cfg.Database,
		cfg.Password,
		cfg.Host,
		strconv.FormatUint(uint64(cfg.Port), 10),
		sslMode)
}

// GetPostgresConnector opens a lib/pq connection pool and waits for the
// server to answer.
func GetPostgresConnector(ctx context.Context, cfg *PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open(DriverLibPQ, cfg.DSN())
	if err != nil {
		return nil, err
	}
	return prepare(ctx, db, cfg)
}

// GetPgxConnector opens a pool through the pgx stdlib driver.
func GetPgxConnector(ctx context.Context, cfg *PostgresConfig) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("pgx.ParseConfig: %w", err)
	}
	return prepare(ctx, stdlib.OpenDB(*connCfg), cfg)
}

func prepare(ctx context.Context, db *sql.DB, cfg *PostgresConfig) (*sql.DB, error) {
	if err := pingDbWithRetry(ctx, db, cfg.PingTimeout, cfg.PingPeriod); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pingDbWithRetry(): %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	return db, nil
}

func GetSqlxConnector(db *sql.DB, driverName string) *sqlx.DB {
	return sqlx.NewDb(db, driverName)
}

func pingDbWithRetry(ctx context.Context, db *sql.DB, timeout, period time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if period <= 0 {
		period = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := db.PingContext(ctx)
	for err != nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last ping: %v)", ctx.Err(), err)
		case <-time.After(period):
			err = db.PingContext(ctx)
		}
	}
	return nil
}
