package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"dealtrail/internal/config"
	"dealtrail/internal/domain"
	"dealtrail/internal/worker/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu       sync.Mutex
	requests [][]int64
	dlq      []domain.ChangeRecord
	dlqTable string
}

func (f *fakeStorage) GetChangeIdsForTable(context.Context, string, string) ([]int64, error) {
	return nil, nil
}

func (f *fakeStorage) GetChangesByTasks(_ context.Context, tasks []domain.ChangeTask, table string) ([]domain.ChangeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(tasks))
	res := make([]domain.ChangeRecord, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
		res = append(res, domain.ChangeRecord{
			ID:     task.ID,
			Table:  table,
			Method: domain.InsertChange,
			Data:   json.RawMessage(`{}`),
		})
	}
	f.requests = append(f.requests, ids)
	return res, nil
}

func (f *fakeStorage) PushChangeDlq(_ context.Context, change domain.ChangeRecord, _ error, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, change)
	f.dlqTable = table
	return nil
}

type fakeOutput struct {
	mu     sync.Mutex
	pushed []domain.ChangeRecord
	failID int64
}

func (f *fakeOutput) PushChange(_ context.Context, change domain.ChangeRecord, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if change.ID == f.failID {
		return errors.New("broker unavailable")
	}
	f.pushed = append(f.pushed, change)
	return nil
}

func (f *fakeOutput) Close() error { return nil }

func (f *fakeOutput) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]int64, 0, len(f.pushed))
	for _, c := range f.pushed {
		res = append(res, c.ID)
	}
	return res
}

func newConsumer(storage *fakeStorage, out *fakeOutput, cfg config.ConsumerConfig) (*ChangesConsumer, *transfer.TaskTransfer) {
	tr := transfer.NewTaskTransfer([]string{"tasks"}, 16)
	return New(Deps{
		Storage:      storage,
		OutSrv:       out,
		TransferSrv:  tr,
		Cfg:          cfg,
		OrigTable:    "tasks",
		ReplicaTable: "tasks_changelog",
	}), tr
}

func TestChangesConsumer_BatchBySize(t *testing.T) {
	storage := &fakeStorage{}
	out := &fakeOutput{}
	c, _ := newConsumer(storage, out, config.ConsumerConfig{MaxTasksBatch: 2, MaxBatchWait: time.Hour})
	c.timer = time.NewTimer(time.Hour)
	ctx := context.Background()

	require.NoError(t, c.ProcessTask(ctx, domain.ChangeTask{ID: 1}))
	assert.Empty(t, out.ids())
	require.NoError(t, c.ProcessTask(ctx, domain.ChangeTask{ID: 2}))

	assert.Equal(t, []int64{1, 2}, out.ids())
	assert.Equal(t, [][]int64{{1, 2}}, storage.requests)
	assert.Equal(t, "tasks", out.pushed[0].Table)
	assert.Equal(t, uint64(2), c.stats.Pushed.Load())
	assert.False(t, c.stats.LastProcessed().IsZero())
}

func TestChangesConsumer_DeadLetters(t *testing.T) {
	storage := &fakeStorage{}
	out := &fakeOutput{failID: 2}
	c, _ := newConsumer(storage, out, config.ConsumerConfig{EnableDLQ: true})

	require.NoError(t, c.PushChangesBatch(context.Background(), []domain.ChangeRecord{
		{ID: 1}, {ID: 2}, {ID: 3},
	}))
	assert.Equal(t, []int64{1, 3}, out.ids())
	require.Len(t, storage.dlq, 1)
	assert.Equal(t, int64(2), storage.dlq[0].ID)
	assert.Equal(t, "tasks_changelog", storage.dlqTable)
	assert.Equal(t, uint64(1), c.stats.Failed.Load())
}

func TestChangesConsumer_StopOnError(t *testing.T) {
	out := &fakeOutput{failID: 1}
	c, _ := newConsumer(&fakeStorage{}, out, config.ConsumerConfig{StopOnError: true, EnableDLQ: true})

	err := c.PushChangesBatch(context.Background(), []domain.ChangeRecord{{ID: 1}, {ID: 2}})
	require.Error(t, err)
	assert.Empty(t, out.ids())
}

func TestChangesConsumer_RunFlushesOnTimerAndShutdown(t *testing.T) {
	storage := &fakeStorage{}
	out := &fakeOutput{}
	c, tr := newConsumer(storage, out, config.ConsumerConfig{MaxTasksBatch: 100, MaxBatchWait: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.NoError(t, tr.ScheduleSendTask(ctx, "tasks", domain.ChangeTask{ID: 7}))
	assert.Eventually(t, func() bool {
		return len(out.ids()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []int64{7}, out.ids())
}
