package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealtrail/internal/domain"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/registry"
	"dealtrail/internal/store/memstore"
	"dealtrail/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) (*Executor, *eventlog.Log, *memstore.Storage) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	st := memstore.New()
	log := eventlog.New(eventlog.Deps{Storage: st})
	exec := NewExecutor(Deps{
		Tasks:     st,
		Log:       log,
		Validator: validator.New(reg),
		Clock:     func() time.Time { return at },
	})
	return exec, log, st
}

func TestPersist_UnderContract(t *testing.T) {
	ctx := context.Background()
	exec, log, st := newExecutor(t)

	actions := NewEngine().Evaluate(statusChange(domain.StatusActive, domain.StatusUnderContract))
	res := exec.Persist(ctx, actions, "tx-1")
	require.NoError(t, res.Err())

	require.Len(t, res.CreatedTasks, 1)
	assert.Equal(t, "Schedule home inspection", res.CreatedTasks[0].Title)
	require.Len(t, res.CreatedEvents, 2)
	assert.Equal(t, domain.EventTaskAutoCreated, res.CreatedEvents[0].Type)
	assert.Equal(t, res.CreatedTasks[0].ID, res.CreatedEvents[0].Payload["taskId"])
	assert.Equal(t, "Transaction moved to Under Contract", res.CreatedEvents[0].Payload["reason"])
	assert.Equal(t, domain.RoleSystem, res.CreatedEvents[0].ActorRole)
	assert.Equal(t, domain.EventMilestoneReached, res.CreatedEvents[1].Type)

	rows, err := st.SelectTasks(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	events, err := log.Read(ctx, domain.TransactionAggregate("tx-1"))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestPersist_FailedInsertEmitsNoAuditEvent(t *testing.T) {
	ctx := context.Background()
	exec, log, st := newExecutor(t)
	st.FailInsertTask = func(row domain.TaskRow) error {
		if row.Title == "Review inspection report" {
			return errors.New("constraint violation")
		}
		return nil
	}

	actions := NewEngine().Evaluate(statusChange(domain.StatusUnderContract, domain.StatusContingencyPeriod))
	res := exec.Persist(ctx, actions, "tx-1")

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	assert.Error(t, res.Err())

	require.Len(t, res.CreatedTasks, 1)
	assert.Equal(t, "Negotiate repairs or credits", res.CreatedTasks[0].Title)

	events, err := log.Read(ctx, domain.TransactionAggregate("tx-1"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Negotiate repairs or credits", events[0].Payload["title"])
	assert.Equal(t, domain.EventDeadlineCreated, events[1].Type)
}

func TestPersist_FailedAppendKeepsTaskAndContinues(t *testing.T) {
	ctx := context.Background()
	exec, _, st := newExecutor(t)
	st.FailInsertEvent = func(ev domain.Event) error {
		if ev.Type == domain.EventTaskAutoCreated {
			return errors.New("log unavailable")
		}
		return nil
	}

	actions := NewEngine().Evaluate(statusChange(domain.StatusContingencyPeriod, domain.StatusClearToClose))
	res := exec.Persist(ctx, actions, "tx-1")

	assert.Len(t, res.Failures, 2)
	assert.Len(t, res.CreatedTasks, 2)
	require.Len(t, res.CreatedEvents, 1)
	assert.Equal(t, domain.EventMilestoneReached, res.CreatedEvents[0].Type)
	for _, f := range res.Failures {
		assert.True(t, errors.Is(f.Err, domain.ErrorPersistence))
	}
}

func TestPersist_InvalidEmittedEventIsReported(t *testing.T) {
	exec, _, _ := newExecutor(t)
	res := exec.Persist(context.Background(), []Action{
		EmitEvent(domain.EventMilestoneReached, map[string]any{}),
		{Type: "reticulate_splines"},
	}, "tx-1")

	require.Len(t, res.Failures, 2)
	assert.True(t, errors.Is(res.Failures[0].Err, domain.ErrorInvalidPayload))
	assert.Contains(t, res.Failures[1].Err.Error(), "unknown action type")
}
