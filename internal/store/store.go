package store

import (
	"context"

	"dealtrail/internal/domain"
)

// IStorage is the persistence collaborator of the core. Domain rows are
// never deleted.
type IStorage interface {
	IEventStorage
	ITaskStorage
	IChangelogStorage
}

type IEventStorage interface {
	// InsertEvent persists the event and returns it with its log sequence.
	InsertEvent(ctx context.Context, event domain.Event) (domain.Event, error)
	// SelectEvents returns the aggregate's events ordered by (created_at, seq).
	SelectEvents(ctx context.Context, agg domain.Aggregate) ([]domain.Event, error)
}

type ITaskStorage interface {
	InsertTask(ctx context.Context, task domain.TaskRow) (domain.TaskRow, error)
	SelectTasks(ctx context.Context, transactionID string) ([]domain.TaskRow, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error
}

// IChangelogStorage backs the change feed relay.
type IChangelogStorage interface {
	IDeadLetterQueue
	GetChangeIdsForTable(ctx context.Context, table, statusTable string) ([]int64, error)
	GetChangesByTasks(ctx context.Context, tasks []domain.ChangeTask, table string) ([]domain.ChangeRecord, error)
}

type IDeadLetterQueue interface {
	PushChangeDlq(ctx context.Context, change domain.ChangeRecord, originError error, table string) error
}
