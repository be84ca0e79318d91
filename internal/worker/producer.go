package worker

import (
	"context"

	"dealtrail/internal/domain"
)

// IChangesProducer polls one changelog table and schedules its new rows.
type IChangesProducer interface {
	Run(ctx context.Context) error
	GetChanges(ctx context.Context) ([]int64, error)
	PushSingleTask(ctx context.Context, task domain.ChangeTask) error
	PushTasks(ctx context.Context, tasks []domain.ChangeTask) error
}
