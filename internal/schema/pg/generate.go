package pg

import (
	"context"
	"fmt"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/db/sqltx"
	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const (
	changelogTableNameTemplate      = "%s_changelog"
	changelogIndexCreatedAtTemplate = "%s_created_at_idx"
	statusTableName                 = "change_feed_status"
	procedureNameTemplate           = "%s_changelog_proc"
	triggerNameTemplate             = "%s_changelog_trigger"
	dlqTableName                    = "dead_changes"
)

type SchemaGenerator struct {
	db           *sqlx.DB
	config       config.SchemaConfig
	changeFeed   bool
	triggerNames map[string]string
	procNames    []string
}

func NewSchemaGenerator(db *sqlx.DB, cfg config.SchemaConfig, changeFeed bool) *SchemaGenerator {
	if cfg.ChangelogTableNames == nil {
		cfg.ChangelogTableNames = make(map[string]string, len(cfg.TableNames))
	}
	return &SchemaGenerator{
		db:           db,
		config:       cfg,
		changeFeed:   changeFeed,
		triggerNames: make(map[string]string),
		procNames:    make([]string, 0, len(cfg.TableNames)),
	}
}

func (s *SchemaGenerator) Start(ctx context.Context) error {
	s.config.CreationTime = time.Now()
	err := s.GenerateSchema(ctx)
	if err != nil {
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

// GetDB returns the database connection
func (s *SchemaGenerator) GetDB() *sqlx.DB {
	return s.db
}

func (s *SchemaGenerator) GenerateSchema(ctx context.Context) error {
	err := sqltx.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := s.generateCoreTablesTx(ctx, tx); err != nil {
			return err
		}
		if err := s.checkTablesExistenceTx(ctx, tx); err != nil {
			return err
		}
		if !s.changeFeed {
			return nil
		}
		if err := s.generateStatusTableTx(ctx, tx); err != nil {
			return err
		}
		dlq, err := s.generateDlqTableTx(ctx, tx)
		if err != nil {
			return err
		}
		s.config.DlqTableName = dlq
		for _, tableName := range s.config.TableNames {
			changelog, err := s.generateChangelogTableTx(ctx, tableName, tx)
			if err != nil {
				return err
			}
			s.config.ChangelogTableNames[tableName] = changelog
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
		err := s.generateTriggersTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("s.generateTriggersTx: %w", err)
		}
		return nil
	}, nil)
	if err != nil {
		return fmt.Errorf("generate triggers err: %w", err)
	}
	return nil
}

func (s *SchemaGenerator) generateCoreTablesTx(ctx context.Context, tx *sqlx.Tx) error {
	for _, q := range []string{
		CreateEventsTableQuery,
		CreateEventsIndexesQuery,
		CreateEventsImmutableProcedureQuery,
		CreateEventsImmutableTriggerQuery,
		CreateTasksTableQuery,
		CreateTasksIndexQuery,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create core tables error: %w", err)
		}
	}
	return nil
}

func (s *SchemaGenerator) generateStatusTableTx(ctx context.Context, tx *sqlx.Tx) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(CreateStatusTableQuery, statusTableName))
	if err != nil {
		return fmt.Errorf("create status table error: %w", err)
	}
	s.config.ReplicationStatusTableName = statusTableName
	return nil
}

func (s *SchemaGenerator) generateChangelogTableTx(ctx context.Context, tableName string, tx *sqlx.Tx) (string, error) {
	changelogTableName := fmt.Sprintf(changelogTableNameTemplate, tableName)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(CreateChangelogTableQuery, changelogTableName))
	if err != nil {
		return "", fmt.Errorf("create table error: %w", err)
	}
	indexName := fmt.Sprintf(changelogIndexCreatedAtTemplate, changelogTableName)
	_, err = tx.ExecContext(ctx, fmt.Sprintf(CreateCreatedAtIdxForChangelogTableQuery,
		indexName, changelogTableName))
	if err != nil {
		return "", fmt.Errorf("create index error: %w", err)
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(RegisterStatusRowQuery, statusTableName), changelogTableName)
	if err != nil {
		return "", fmt.Errorf("insert changelog tablenames error: %w", err)
	}
	return changelogTableName, nil
}

// Drop removes the change feed objects. Domain tables are kept: the event
// log is never dropped by the service.
func (s *SchemaGenerator) Drop() error {
	return sqltx.WithTx(context.Background(), s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		for orig, table := range s.config.ChangelogTableNames {
			if trigger, ok := s.triggerNames[orig]; ok {
				_, err := tx.ExecContext(ctx, fmt.Sprintf(DropTriggerQuery, trigger, orig))
				if err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, fmt.Sprintf(DropTableQuery, table))
			if err != nil {
				return err
			}
		}
		for _, proc := range s.procNames {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(DropProcedureQuery, proc))
			if err != nil {
				return err
			}
		}
		if s.config.ReplicationStatusTableName != "" {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(DropTableQuery, s.config.ReplicationStatusTableName))
			if err != nil {
				return err
			}
		}
		if s.config.DlqTableName != "" {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(DropTableQuery, s.config.DlqTableName))
			if err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

func (s *SchemaGenerator) checkTablesExistenceTx(ctx context.Context, tx *sqlx.Tx) error {
	if len(s.config.TableNames) == 0 {
		return domain.ErrorNoTablesSpecified
	}
	query, args, err :=
		squirrel.Select("count(*)").
			From("pg_tables").
			Where(squirrel.Eq{
				"schemaname": "public"},
			).
			Where(squirrel.Eq{
				"tablename": s.config.TableNames,
			}).PlaceholderFormat(squirrel.Dollar).
			ToSql()
	if err != nil {
		return err
	}
	var providedTablesCount int
	err = tx.GetContext(ctx, &providedTablesCount, query, args...)
	if err != nil {
		return fmt.Errorf("cannot select table names: %w", err)
	}
	if providedTablesCount != len(s.config.TableNames) {
		return fmt.Errorf("expected %d, got %d: %w", len(s.config.TableNames), providedTablesCount, domain.ErrorTablesDoMatchWithSchema)
	}
	return nil
}

func (s *SchemaGenerator) generateTriggersTx(ctx context.Context, tx *sqlx.Tx) error {
	for original, changelog := range s.config.ChangelogTableNames {
		procName := fmt.Sprintf(procedureNameTemplate, changelog)
		s.procNames = append(s.procNames, procName)
		_, err := tx.ExecContext(ctx, fmt.Sprintf(CreateChangelogProcedureQuery, procName, changelog, changelog, changelog))
		if err != nil {
			return fmt.Errorf("unable to create procedure for table %s: %w", changelog, err)
		}
		triggerName := fmt.Sprintf(triggerNameTemplate, changelog)
		s.triggerNames[original] = triggerName
		_, err = tx.ExecContext(ctx, fmt.Sprintf(CreateTriggerForWatchedTableQuery, triggerName, original, procName))
		if err != nil {
			return fmt.Errorf("unable to create trigger for table %s: %w", changelog, err)
		}
	}
	return nil
}

func (s *SchemaGenerator) generateDlqTableTx(ctx context.Context, tx *sqlx.Tx) (string, error) {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(CreateDlqTableQuery, dlqTableName))
	if err != nil {
		return "", fmt.Errorf("createDlqTableQuery: %w", err)
	}
	return dlqTableName, nil
}
