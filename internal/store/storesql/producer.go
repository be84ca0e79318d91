package storesql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dealtrail/internal/db/sqltx"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// GetChangeIdsForTable returns the changelog ids not yet handed out for
// table and advances the table's high-water mark in statusTable.
func (s *Storage) GetChangeIdsForTable(ctx context.Context, table, statusTable string) ([]int64, error) {
	var res []int64
	err := sqltx.WithTx(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		lastID, err := s.lastFetchedIDTx(ctx, tx, table, statusTable)
		if err != nil {
			return err
		}
		query, args, err := squirrel.
			Select("id").
			From(table).
			Where(squirrel.Gt{"id": lastID}).
			OrderBy("id").
			PlaceholderFormat(s.ph).ToSql()
		if err != nil {
			return fmt.Errorf("squirrel.Select: %w", err)
		}
		if err := tx.SelectContext(ctx, &res, query, args...); err != nil {
			return fmt.Errorf("select ids error: %w", err)
		}
		if len(res) == 0 {
			return nil
		}
		query, args, err = squirrel.
			Update(statusTable).
			Set("last_fetch_id", res[len(res)-1]).
			Set("last_fetch_timestamp", time.Now().UTC()).
			Where(squirrel.Eq{"table_name": table}).
			PlaceholderFormat(s.ph).ToSql()
		if err != nil {
			return fmt.Errorf("squirrel.Update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update last fetch id: %w", err)
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Storage) lastFetchedIDTx(ctx context.Context, tx *sqlx.Tx, table, statusTable string) (int64, error) {
	query, args, err := squirrel.
		Select("coalesce(last_fetch_id, 0)").
		From(statusTable).
		Where(squirrel.Eq{"table_name": table}).
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return 0, fmt.Errorf("squirrel.Select: %w", err)
	}
	var lastID int64
	err = tx.GetContext(ctx, &lastID, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("table %s is not registered in %s", table, statusTable)
	}
	if err != nil {
		return 0, fmt.Errorf("select last fetch id: %w", err)
	}
	return lastID, nil
}
