package manager

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/metrics"
	"dealtrail/internal/output"
	"dealtrail/internal/store"
	"dealtrail/internal/worker"
	"dealtrail/internal/worker/consumer"
	"dealtrail/internal/worker/producer"
	"dealtrail/internal/worker/transfer"
)

// WorkerManager runs one producer and one consumer per watched table.
type WorkerManager struct {
	transfer    worker.ITaskTransfer
	errChan     chan error
	storage     store.IChangelogStorage
	output      output.IOutput
	metrics     metrics.IMetrics
	schemaCfg   config.SchemaConfig
	producerCfg config.ProducerConfig
	consumerCfg config.ConsumerConfig
	logger      *slog.Logger

	stats  map[string]*consumer.Stats
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Deps struct {
	// Transfer defaults to buffered in-process queues.
	Transfer    worker.ITaskTransfer
	Storage     store.IChangelogStorage
	Output      output.IOutput
	Metrics     metrics.IMetrics
	SchemaCfg   config.SchemaConfig
	ProducerCfg config.ProducerConfig
	ConsumerCfg config.ConsumerConfig
}

func NewWorkerManager(deps Deps) *WorkerManager {
	tables := watchedTables(deps.SchemaCfg)
	if deps.Transfer == nil {
		deps.Transfer = transfer.NewTaskTransfer(tables, deps.ConsumerCfg.MaxTasksBatch*4)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	stats := make(map[string]*consumer.Stats, len(tables))
	for _, table := range tables {
		stats[table] = &consumer.Stats{}
	}
	return &WorkerManager{
		transfer:    deps.Transfer,
		storage:     deps.Storage,
		output:      deps.Output,
		metrics:     deps.Metrics,
		schemaCfg:   deps.SchemaCfg,
		producerCfg: deps.ProducerCfg,
		consumerCfg: deps.ConsumerCfg,
		logger:      slog.Default().With("component", "worker-manager"),
		stats:       stats,
	}
}

var _ worker.IManager = (*WorkerManager)(nil)

// Start launches the workers. Worker errors are reported on the returned
// channel until ctx is done or Stop is called.
func (w *WorkerManager) Start(ctx context.Context) <-chan error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.errChan = make(chan error, 2*len(w.schemaCfg.ChangelogTableNames))
	if err := w.StartProducers(ctx); err != nil {
		w.report(ctx, err)
	}
	if err := w.StartConsumers(ctx); err != nil {
		w.report(ctx, err)
	}
	w.logger.Info("change feed started", "tables", watchedTables(w.schemaCfg))
	return w.errChan
}

func (w *WorkerManager) StartProducers(ctx context.Context) error {
	for original, replica := range w.schemaCfg.ChangelogTableNames {
		p := producer.New(producer.Deps{
			Storage:         w.storage,
			Transfer:        w.transfer,
			Metrics:         w.metrics,
			Cfg:             w.producerCfg,
			TaskChannelName: original,
			TableName:       replica,
			StatusTable:     w.schemaCfg.ReplicationStatusTableName,
		})
		w.run(ctx, p.Run)
	}
	return nil
}

func (w *WorkerManager) StartConsumers(ctx context.Context) error {
	for original, replica := range w.schemaCfg.ChangelogTableNames {
		c := consumer.New(consumer.Deps{
			Storage:      w.storage,
			OutSrv:       w.output,
			TransferSrv:  w.transfer,
			MetricsSrv:   w.metrics,
			Stats:        w.stats[original],
			Cfg:          w.consumerCfg,
			OrigTable:    original,
			ReplicaTable: replica,
		})
		w.run(ctx, c.Run)
	}
	return nil
}

func (w *WorkerManager) run(ctx context.Context, fn func(context.Context) error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := fn(ctx); err != nil {
			w.report(ctx, err)
		}
	}()
}

func (w *WorkerManager) report(ctx context.Context, err error) {
	select {
	case <-ctx.Done():
	case w.errChan <- err:
	}
}

func (w *WorkerManager) GetTableStats(tableName string) (uint64, uint64) {
	s, ok := w.stats[tableName]
	if !ok {
		return 0, 0
	}
	return s.Pushed.Load(), s.Failed.Load()
}

func (w *WorkerManager) GetLastProcessedTime(tableName string) time.Time {
	s, ok := w.stats[tableName]
	if !ok {
		return time.Time{}
	}
	return s.LastProcessed()
}

// Tables lists the watched tables in name order.
func (w *WorkerManager) Tables() []string {
	return watchedTables(w.schemaCfg)
}

// Stop cancels the workers and waits for their pending batches to flush.
func (w *WorkerManager) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

func watchedTables(cfg config.SchemaConfig) []string {
	tables := make([]string, 0, len(cfg.ChangelogTableNames))
	for original := range cfg.ChangelogTableNames {
		tables = append(tables, original)
	}
	sort.Strings(tables)
	return tables
}
