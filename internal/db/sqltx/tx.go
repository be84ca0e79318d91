// Package sqltx runs a function inside a sqlx transaction.
package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type txFunc func(ctx context.Context, tx *sqlx.Tx) error

// WithTx commits when fn returns nil and rolls back on error or panic.
func WithTx(ctx context.Context, db *sqlx.DB, fn txFunc, opts *sql.TxOptions) (err error) {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollbackTx(ctx, tx)
			panic(p)
		} else if err != nil {
			rollbackTx(ctx, tx)
		} else {
			err = tx.Commit()
			if err != nil {
				err = fmt.Errorf("cannot commit transaction: %w", err)
			}
		}
	}()

	err = fn(ctx, tx)

	return err
}

func rollbackTx(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil {
		if !errors.Is(err, pq.ErrChannelAlreadyOpen) && !errors.Is(err, sql.ErrTxDone) {
			slog.WarnContext(ctx, "sqltx: rollback failed", "error", err)
		}
	}
}
