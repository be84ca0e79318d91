package storesql

import (
	"context"
	"fmt"
	"time"

	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
)

var changeColumns = []string{
	"id",
	"method",
	"created_at",
	"data",
}

func (s *Storage) GetChangesByTasks(ctx context.Context, tasks []domain.ChangeTask, table string) ([]domain.ChangeRecord, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	query, args, err := squirrel.
		Select(changeColumns...).
		From(table).
		Where(squirrel.Eq{
			"id": tasksToInt(tasks),
		}).
		OrderBy("id").
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return nil, fmt.Errorf("squirrel.Select: %w", err)
	}
	var rows []changeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select changes error: %w", err)
	}
	res := make([]domain.ChangeRecord, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.ChangeRecord{
			ID:        row.ID,
			Table:     table,
			Method:    domain.ChangeMethod(row.Method),
			CreatedAt: row.CreatedAt.UTC(),
			Data:      row.Data,
		})
	}
	return res, nil
}

type changeRow struct {
	ID        int64     `db:"id"`
	Method    string    `db:"method"`
	CreatedAt time.Time `db:"created_at"`
	Data      []byte    `db:"data"`
}

func tasksToInt(tasks []domain.ChangeTask) []int64 {
	res := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		res = append(res, task.ID)
	}
	return res
}
