package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/metrics"
	"dealtrail/internal/store"
	"dealtrail/internal/worker"
)

const defaultPeriod = time.Second

type ChangesProducer struct {
	transfer worker.ITaskInputTransfer
	storage  store.IChangelogStorage
	metrics  metrics.IMetrics
	logger   *slog.Logger

	cfg config.ProducerConfig

	taskChannelName string
	tableName       string
	statusTableName string
}

type Deps struct {
	Storage  store.IChangelogStorage
	Transfer worker.ITaskInputTransfer
	Metrics  metrics.IMetrics
	Cfg      config.ProducerConfig
	// TaskChannelName is the watched table, TableName its changelog.
	TaskChannelName string
	TableName       string
	StatusTable     string
}

func New(deps Deps) *ChangesProducer {
	if deps.Cfg.Period <= 0 {
		deps.Cfg.Period = defaultPeriod
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	return &ChangesProducer{
		transfer:        deps.Transfer,
		storage:         deps.Storage,
		metrics:         deps.Metrics,
		logger:          slog.Default().With("component", "producer", "table", deps.TaskChannelName),
		cfg:             deps.Cfg,
		taskChannelName: deps.TaskChannelName,
		tableName:       deps.TableName,
		statusTableName: deps.StatusTable,
	}
}

var _ worker.IChangesProducer = (*ChangesProducer)(nil)

func (c *ChangesProducer) Run(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.Period)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("producer stopped")
			return nil
		case <-timer.C:
			if err := c.poll(ctx); err != nil && c.cfg.StopOnError {
				return err
			}
			timer.Reset(c.cfg.Period)
		}
	}
}

func (c *ChangesProducer) poll(ctx context.Context) error {
	ids, err := c.GetChanges(ctx)
	if err != nil {
		c.metrics.FailedFetchChanges(c.taskChannelName)
		c.logger.Error("storage.GetChangeIdsForTable", "error", err)
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	c.metrics.SuccessFetchChanges(c.taskChannelName, len(ids))
	if err := c.PushTasks(ctx, idsToTasks(ids)); err != nil {
		c.logger.Error("c.PushTasks", "error", err)
		return err
	}
	return nil
}

func (c *ChangesProducer) GetChanges(ctx context.Context) ([]int64, error) {
	return c.storage.GetChangeIdsForTable(ctx, c.tableName, c.statusTableName)
}

func (c *ChangesProducer) PushSingleTask(ctx context.Context, task domain.ChangeTask) error {
	err := c.transfer.ScheduleSendTask(ctx, c.taskChannelName, task)
	if err != nil {
		return fmt.Errorf("c.transfer.ScheduleSendTask id %d: %w", task.ID, err)
	}
	return nil
}

func (c *ChangesProducer) PushTasks(ctx context.Context, tasks []domain.ChangeTask) error {
	for _, task := range tasks {
		err := c.PushSingleTask(ctx, task)
		if err != nil {
			c.logger.Warn("task not scheduled", "id", task.ID, "error", err)
			if c.cfg.StopOnError || ctx.Err() != nil {
				return err
			}
		}
	}
	return nil
}

func idsToTasks(ids []int64) []domain.ChangeTask {
	res := make([]domain.ChangeTask, 0, len(ids))
	for _, id := range ids {
		res = append(res, domain.ChangeTask{
			ID: id,
		})
	}
	return res
}
