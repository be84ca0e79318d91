package tasks

import (
	"testing"
	"time"

	"dealtrail/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func event(seq int64, typ domain.EventType, payload map[string]any) domain.Event {
	return domain.Event{
		ID:            uuid.NewString(),
		Sequence:      seq,
		TransactionID: "tx-1",
		Type:          typ,
		ActorRole:     domain.RoleAgent,
		ActorID:       "agent-1",
		Payload:       payload,
		CreatedAt:     base.Add(time.Duration(seq) * time.Minute),
	}
}

func TestProject_CreatedThenCompleted(t *testing.T) {
	t1 := uuid.NewString()
	events := []domain.Event{
		event(1, domain.EventTaskCreated, map[string]any{"taskId": t1, "title": "X"}),
		event(2, domain.EventTaskCompleted, map[string]any{"taskId": t1}),
	}

	got := Project(events)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].Title)
	assert.Equal(t, domain.TaskStatusDone, got[0].Status)
	assert.True(t, got[0].Completed)
	assert.Equal(t, events[0].ID, got[0].SourceEventID)
}

func TestProject_OrphanMutationsAreIgnored(t *testing.T) {
	x := uuid.NewString()
	tests := []struct {
		name  string
		event domain.Event
	}{
		{"assigned", event(1, domain.EventTaskAssigned, map[string]any{"taskId": x, "assignee": "sam"})},
		{"due date", event(1, domain.EventTaskDueDateSet, map[string]any{"taskId": x, "dueDate": "2024-04-01T00:00:00Z"})},
		{"completed", event(1, domain.EventTaskCompleted, map[string]any{"taskId": x})},
		{"status", event(1, domain.EventTaskStatusChanged, map[string]any{"taskId": x, "status": "done"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Project([]domain.Event{tt.event}))
		})
	}
}

func TestProject_FullLifecycle(t *testing.T) {
	a, b := uuid.NewString(), uuid.NewString()
	events := []domain.Event{
		event(5, domain.EventTaskStatusChanged, map[string]any{"taskId": a, "status": "doing"}),
		event(1, domain.EventTaskCreated, map[string]any{"taskId": a, "title": "Order appraisal", "priority": "high"}),
		event(2, domain.EventTaskAutoCreated, map[string]any{"taskId": b, "title": "Final walkthrough", "reason": "Clear to Close"}),
		event(3, domain.EventTaskAssigned, map[string]any{"taskId": a, "assignee": "sam"}),
		event(4, domain.EventTaskDueDateSet, map[string]any{"taskId": a, "dueDate": "2024-04-01T12:00:00Z"}),
		event(6, domain.EventSystemTaskCompleted, map[string]any{"taskId": b}),
		event(7, domain.EventTaskCreated, map[string]any{"taskId": a, "title": "duplicate creation"}),
	}

	got := Project(events)
	require.Len(t, got, 2)

	assert.Equal(t, a, got[0].ID)
	assert.Equal(t, "Order appraisal", got[0].Title)
	assert.Equal(t, domain.TaskPriorityHigh, got[0].Priority)
	assert.Equal(t, "sam", got[0].Assignee)
	require.NotNil(t, got[0].DueDate)
	assert.True(t, got[0].DueDate.Equal(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, domain.TaskStatusInProgress, got[0].Status)
	assert.False(t, got[0].Completed)

	assert.Equal(t, b, got[1].ID)
	assert.Equal(t, domain.TaskStatusDone, got[1].Status)
}

func TestProject_TiesBrokenBySequence(t *testing.T) {
	a := uuid.NewString()
	created := event(1, domain.EventTaskCreated, map[string]any{"taskId": a, "title": "t"})
	first := event(2, domain.EventTaskStatusChanged, map[string]any{"taskId": a, "status": "done"})
	second := event(3, domain.EventTaskStatusChanged, map[string]any{"taskId": a, "status": "todo"})
	first.CreatedAt = base
	second.CreatedAt = base
	created.CreatedAt = base

	got := Project([]domain.Event{second, first, created})
	require.Len(t, got, 1)
	assert.Equal(t, domain.TaskStatusTodo, got[0].Status)
}

func TestProject_MalformedPayloadsAreSkipped(t *testing.T) {
	a := uuid.NewString()
	events := []domain.Event{
		event(1, domain.EventTaskCreated, map[string]any{"title": "no id"}),
		event(2, domain.EventTaskCreated, map[string]any{"taskId": 42}),
		event(3, domain.EventTaskCreated, map[string]any{"taskId": a, "title": "ok"}),
		event(4, domain.EventTaskDueDateSet, map[string]any{"taskId": a, "dueDate": "soon"}),
		event(5, domain.EventTaskStatusChanged, map[string]any{"taskId": a, "status": "blocked"}),
		event(6, domain.EventMessageSent, map[string]any{"taskId": a}),
	}

	got := Project(events)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].DueDate)
	assert.Equal(t, domain.TaskStatusTodo, got[0].Status)
}

func TestAllDone(t *testing.T) {
	assert.False(t, AllDone(nil))
	assert.False(t, AllDone([]domain.Task{{Status: domain.TaskStatusDone}, {Status: domain.TaskStatusTodo}}))
	assert.True(t, AllDone([]domain.Task{{Status: domain.TaskStatusDone}}))
}
