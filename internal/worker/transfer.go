package worker

import (
	"context"

	"dealtrail/internal/domain"
)

type ITaskOutputTransfer interface {
	GetTaskChan(taskQueueName string) <-chan domain.ChangeTask
}

type ITaskInputTransfer interface {
	ScheduleSendTask(ctx context.Context, taskQueueName string, task domain.ChangeTask) error
}

type ITaskTransfer interface {
	ITaskInputTransfer
	ITaskOutputTransfer
}
