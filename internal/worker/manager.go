package worker

import (
	"context"
	"time"
)

type IManager interface {
	Start(ctx context.Context) <-chan error
	StartProducers(ctx context.Context) error
	StartConsumers(ctx context.Context) error
	// GetTableStats returns the pushed and failed change counts of a watched table.
	GetTableStats(tableName string) (uint64, uint64)
	GetLastProcessedTime(tableName string) time.Time
	Stop()
}
