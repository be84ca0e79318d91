package worker

import (
	"context"

	"dealtrail/internal/domain"
)

// IChangesConsumer batches scheduled tasks, loads their row images and
// pushes them to the output.
type IChangesConsumer interface {
	Run(ctx context.Context) error
	ProcessTask(ctx context.Context, task domain.ChangeTask) error
	GetChanges(ctx context.Context, tasks []domain.ChangeTask) ([]domain.ChangeRecord, error)
	PushSingleChange(ctx context.Context, change domain.ChangeRecord) error
	PushChangesBatch(ctx context.Context, changes []domain.ChangeRecord) error
}
