package storesql

import (
	"context"
	"fmt"
	"time"

	"dealtrail/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var tasksColumns = []string{
	"id",
	"transaction_id",
	"title",
	"status",
	"priority",
	"due_date",
	"assignee",
	"created_at",
}

func (s *Storage) InsertTask(ctx context.Context, task domain.TaskRow) (domain.TaskRow, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	query, args, err := squirrel.
		Insert(TasksTable).
		Columns(tasksColumns...).
		Values(
			task.ID,
			task.TransactionID,
			task.Title,
			string(task.Status),
			string(task.Priority),
			task.DueDate,
			task.Assignee,
			task.CreatedAt,
		).
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return domain.TaskRow{}, fmt.Errorf("squirrel.Insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.TaskRow{}, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (s *Storage) SelectTasks(ctx context.Context, transactionID string) ([]domain.TaskRow, error) {
	query, args, err := squirrel.
		Select(tasksColumns...).
		From(TasksTable).
		Where(squirrel.Eq{"transaction_id": transactionID}).
		OrderBy("created_at", "id").
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return nil, fmt.Errorf("squirrel.Select: %w", err)
	}
	var res []domain.TaskRow
	if err := s.db.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return res, nil
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	set := make(map[string]any, 3)
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.Assignee != nil {
		set["assignee"] = *patch.Assignee
	}
	if patch.DueDate != nil {
		set["due_date"] = *patch.DueDate
	}
	if len(set) == 0 {
		return nil
	}
	query, args, err := squirrel.
		Update(TasksTable).
		SetMap(set).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(s.ph).ToSql()
	if err != nil {
		return fmt.Errorf("squirrel.Update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, domain.ErrorNotFound)
	}
	return nil
}
