// Package sqlite creates the embedded-store schema. It mirrors the Postgres
// generator, with SQLite triggers writing json_object row images into the
// changelog tables.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/db/sqltx"
	"dealtrail/internal/domain"

	"github.com/jmoiron/sqlx"
)

const (
	statusTableName = "change_feed_status"
	dlqTableName    = "dead_changes"
)

type SchemaGenerator struct {
	db         *sqlx.DB
	config     config.SchemaConfig
	changeFeed bool
	triggers   []string
}

func NewSchemaGenerator(db *sqlx.DB, cfg config.SchemaConfig, changeFeed bool) *SchemaGenerator {
	if cfg.ChangelogTableNames == nil {
		cfg.ChangelogTableNames = make(map[string]string, len(cfg.TableNames))
	}
	return &SchemaGenerator{
		db:         db,
		config:     cfg,
		changeFeed: changeFeed,
	}
}

func (s *SchemaGenerator) Start(ctx context.Context) error {
	s.config.CreationTime = time.Now()
	if err := s.GenerateSchema(ctx); err != nil {
		return err
	}
	if !s.changeFeed {
		return nil
	}
	return s.GenerateTriggers(ctx)
}

func (s *SchemaGenerator) GetConfig() config.SchemaConfig {
	return s.config
}

func (s *SchemaGenerator) GenerateSchema(ctx context.Context) error {
	err := sqltx.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, q := range []string{
			createEventsTableQuery,
			createEventsTransactionIdxQuery,
			createEventsContactIdxQuery,
			createEventsNoUpdateTriggerQuery,
			createEventsNoDeleteTriggerQuery,
			createTasksTableQuery,
			createTasksIdxQuery,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("create core tables error: %w", err)
			}
		}
		if len(s.config.TableNames) == 0 {
			return domain.ErrorNoTablesSpecified
		}
		if !s.changeFeed {
			return nil
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createStatusTableQuery, statusTableName)); err != nil {
			return fmt.Errorf("create status table error: %w", err)
		}
		s.config.ReplicationStatusTableName = statusTableName
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createDlqTableQuery, dlqTableName)); err != nil {
			return fmt.Errorf("create dlq table error: %w", err)
		}
		s.config.DlqTableName = dlqTableName

		for _, table := range s.config.TableNames {
			if _, ok := rowImages[table]; !ok {
				return fmt.Errorf("table %s: %w", table, domain.ErrorTablesDoMatchWithSchema)
			}
			changelog := table + "_changelog"
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(createChangelogTableQuery, changelog)); err != nil {
				return fmt.Errorf("create table error: %w", err)
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(registerStatusRowQuery, statusTableName), changelog); err != nil {
				return fmt.Errorf("insert changelog tablenames error: %w", err)
			}
			s.config.ChangelogTableNames[table] = changelog
		}
		return nil
	}, nil)
	if err != nil {
		return fmt.Errorf("generate err: %w", err)
	}
	return nil
}

func (s *SchemaGenerator) GenerateTriggers(ctx context.Context) error {
	err := sqltx.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for table, changelog := range s.config.ChangelogTableNames {
			for _, op := range []domain.ChangeMethod{domain.InsertChange, domain.UpdateChange} {
				name := fmt.Sprintf("%s_%s_trigger", changelog, op)
				q := fmt.Sprintf(createChangelogTriggerQuery, name, op, table, changelog, op, rowImages[table])
				if _, err := tx.ExecContext(ctx, q); err != nil {
					return fmt.Errorf("unable to create trigger for table %s: %w", changelog, err)
				}
				s.triggers = append(s.triggers, name)
			}
		}
		return nil
	}, nil)
	if err != nil {
		return fmt.Errorf("generate triggers err: %w", err)
	}
	return nil
}

// Drop removes the change feed objects and keeps the domain tables.
func (s *SchemaGenerator) Drop() error {
	return sqltx.WithTx(context.Background(), s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for _, trigger := range s.triggers {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(dropTriggerQuery, trigger)); err != nil {
				return err
			}
		}
		tables := make([]string, 0, len(s.config.ChangelogTableNames)+2)
		for _, changelog := range s.config.ChangelogTableNames {
			tables = append(tables, changelog)
		}
		tables = append(tables, s.config.ReplicationStatusTableName, s.config.DlqTableName)
		for _, table := range tables {
			if table == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(dropTableQuery, table)); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}
