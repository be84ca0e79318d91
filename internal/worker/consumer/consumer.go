package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/metrics"
	"dealtrail/internal/output"
	"dealtrail/internal/store"
	"dealtrail/internal/worker"
)

const (
	defaultMaxWaitTime   = 1 * time.Second
	defaultMaxTasksBatch = 10
)

// Stats counts the outcome of pushed changes for one watched table.
type Stats struct {
	Pushed        atomic.Uint64
	Failed        atomic.Uint64
	lastProcessed atomic.Int64
}

func (s *Stats) LastProcessed() time.Time {
	ns := s.lastProcessed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

type ChangesConsumer struct {
	storage  store.IChangelogStorage
	outSrv   output.IOutput
	transfer worker.ITaskOutputTransfer
	metrics  metrics.IMetrics
	stats    *Stats
	logger   *slog.Logger

	cfg            config.ConsumerConfig
	inChannelName  string
	outChannelName string
	tableName      string

	tasks []domain.ChangeTask
	timer *time.Timer
}

type Deps struct {
	Storage     store.IChangelogStorage
	OutSrv      output.IOutput
	TransferSrv worker.ITaskOutputTransfer
	MetricsSrv  metrics.IMetrics
	Stats       *Stats

	Cfg          config.ConsumerConfig
	OrigTable    string
	ReplicaTable string
}

func New(deps Deps) *ChangesConsumer {
	if deps.Cfg.MaxBatchWait == 0 {
		deps.Cfg.MaxBatchWait = defaultMaxWaitTime
	}
	if deps.Cfg.MaxTasksBatch == 0 {
		deps.Cfg.MaxTasksBatch = defaultMaxTasksBatch
	}
	if deps.MetricsSrv == nil {
		deps.MetricsSrv = metrics.NewNoop()
	}
	if deps.Stats == nil {
		deps.Stats = &Stats{}
	}
	return &ChangesConsumer{
		storage:  deps.Storage,
		outSrv:   deps.OutSrv,
		transfer: deps.TransferSrv,
		metrics:  deps.MetricsSrv,
		stats:    deps.Stats,
		logger:   slog.Default().With("component", "consumer", "table", deps.OrigTable),

		inChannelName:  deps.OrigTable,
		outChannelName: deps.OrigTable,
		tableName:      deps.ReplicaTable,
		cfg:            deps.Cfg,

		tasks: make([]domain.ChangeTask, 0, deps.Cfg.MaxTasksBatch),
	}
}

var _ worker.IChangesConsumer = (*ChangesConsumer)(nil)

// Run consumes until ctx is done or the task channel closes. Tasks already
// batched are flushed before returning, since the producer has advanced past
// them.
func (c *ChangesConsumer) Run(ctx context.Context) error {
	c.timer = time.NewTimer(c.cfg.MaxBatchWait)
	defer c.timer.Stop()
	tasks := c.transfer.GetTaskChan(c.inChannelName)
	for {
		select {
		case <-ctx.Done():
			return c.flush(context.WithoutCancel(ctx))
		case <-c.timer.C:
			if len(c.tasks) == 0 {
				c.timer.Reset(c.cfg.MaxBatchWait)
				continue
			}
			if err := c.fetchAndPushChanges(ctx); err != nil && c.cfg.StopOnError {
				return err
			}
		case task, ok := <-tasks:
			if !ok {
				return c.flush(ctx)
			}
			if err := c.ProcessTask(ctx, task); err != nil {
				return err
			}
		}
	}
}

func (c *ChangesConsumer) flush(ctx context.Context) error {
	if len(c.tasks) == 0 {
		return nil
	}
	err := c.fetchAndPushChanges(ctx)
	if c.cfg.StopOnError {
		return err
	}
	return nil
}

func (c *ChangesConsumer) ProcessTask(ctx context.Context, task domain.ChangeTask) error {
	c.tasks = append(c.tasks, task)
	if len(c.tasks) < c.cfg.MaxTasksBatch {
		return nil
	}
	err := c.fetchAndPushChanges(ctx)
	if c.cfg.StopOnError {
		return err
	}
	return nil
}

func (c *ChangesConsumer) GetChanges(ctx context.Context, tasks []domain.ChangeTask) ([]domain.ChangeRecord, error) {
	return c.storage.GetChangesByTasks(ctx, tasks, c.tableName)
}

func (c *ChangesConsumer) fetchAndPushChanges(ctx context.Context) error {
	changes, err := c.GetChanges(ctx, c.tasks)
	if err != nil {
		c.metrics.FailedFetchChanges(c.inChannelName)
		c.logger.Error("GetChanges", "error", err, "tasks", len(c.tasks))
		c.timer.Reset(c.cfg.MaxBatchWait)
		return err
	}
	err = c.PushChangesBatch(ctx, changes)
	if err != nil {
		c.logger.Error("PushChangesBatch", "error", err)
		return err
	}
	c.tasks = make([]domain.ChangeTask, 0, c.cfg.MaxTasksBatch)
	c.timer.Reset(c.cfg.MaxBatchWait)
	return nil
}

func (c *ChangesConsumer) PushSingleChange(ctx context.Context, change domain.ChangeRecord) error {
	change.Table = c.inChannelName
	err := c.outSrv.PushChange(ctx, change, c.outChannelName)
	if err != nil {
		c.metrics.FailedPushChange(c.inChannelName)
		c.stats.Failed.Add(1)
		return err
	}
	c.metrics.SuccessPushChange(c.inChannelName)
	c.stats.Pushed.Add(1)
	c.stats.lastProcessed.Store(time.Now().UnixNano())
	return nil
}

func (c *ChangesConsumer) PushChangesBatch(ctx context.Context, changes []domain.ChangeRecord) error {
	for _, change := range changes {
		err := c.PushSingleChange(ctx, change)
		if err == nil {
			continue
		}
		c.logger.Warn("change not pushed", "id", change.ID, "error", err)
		if c.cfg.StopOnError {
			return err
		}
		if c.cfg.EnableDLQ {
			change.Table = c.inChannelName
			if dErr := c.storage.PushChangeDlq(ctx, change, err, c.tableName); dErr != nil {
				c.logger.Error("storage.PushChangeDlq", "id", change.ID, "error", dErr)
				continue
			}
			c.metrics.DeadLetter(c.inChannelName)
		}
	}
	return nil
}
