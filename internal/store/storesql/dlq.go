package storesql

import (
	"context"
	"encoding/json"
	"fmt"

	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
)

func (s *Storage) PushChangeDlq(ctx context.Context, change domain.ChangeRecord, originError error, table string) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	query, args, err := squirrel.
		Insert(s.dlqTable).
		Columns("origin_table", "payload", "origin_error").
		Values(table, string(data), originError.Error()).
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return fmt.Errorf("squirrel.Insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("push dlq error: %w", err)
	}
	return nil
}
