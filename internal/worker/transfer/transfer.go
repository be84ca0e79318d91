package transfer

import (
	"context"
	"fmt"

	"dealtrail/internal/domain"
)

const defaultQueueSize = 64

// TaskTransfer connects the producer and consumer of each watched table
// with a buffered channel.
type TaskTransfer struct {
	channels map[string]chan domain.ChangeTask
}

func NewTaskTransfer(tables []string, size int) *TaskTransfer {
	if size <= 0 {
		size = defaultQueueSize
	}
	chans := make(map[string]chan domain.ChangeTask, len(tables))
	for _, table := range tables {
		chans[table] = make(chan domain.ChangeTask, size)
	}
	return &TaskTransfer{
		channels: chans,
	}
}

// ScheduleSendTask blocks while the queue is full, until ctx is done.
func (t *TaskTransfer) ScheduleSendTask(ctx context.Context, taskQueueName string, task domain.ChangeTask) error {
	tChan, ok := t.channels[taskQueueName]
	if !ok {
		return fmt.Errorf("no channel %s: %w", taskQueueName, domain.ErrorUnknownChannel)
	}
	select {
	case tChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetTaskChan returns nil for unknown queues.
func (t *TaskTransfer) GetTaskChan(taskQueueName string) <-chan domain.ChangeTask {
	return t.channels[taskQueueName]
}
