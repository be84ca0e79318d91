package automation

import (
	"testing"
	"time"

	"dealtrail/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 7, 1, 15, 0, 0, 0, time.UTC)

func statusChange(prev, next domain.TransactionStatus) Trigger {
	return Trigger{Kind: TriggerStatusChange, PreviousStatus: prev, TransactionStatus: next, At: at}
}

func TestEvaluate_UnderContract(t *testing.T) {
	actions := NewEngine().Evaluate(statusChange(domain.StatusActive, domain.StatusUnderContract))

	var creates, emits []Action
	for _, a := range actions {
		switch a.Type {
		case ActionCreateTask:
			creates = append(creates, a)
		case ActionEmitEvent:
			emits = append(emits, a)
		}
	}
	require.Len(t, creates, 1)
	require.Len(t, emits, 1)
	assert.Equal(t, "Schedule home inspection", creates[0].Task.Title)
	assert.Equal(t, domain.TaskPriorityHigh, creates[0].Task.Priority)
	assert.Equal(t, at.Add(7*24*time.Hour), creates[0].Task.DueDate)
	assert.Equal(t, domain.EventMilestoneReached, emits[0].Event.Type)
	assert.Equal(t, MilestoneOfferAccepted, emits[0].Event.Payload["milestone"])
}

func TestEvaluate_NoTransitionNoActions(t *testing.T) {
	engine := NewEngine()
	for _, status := range domain.TransactionStatuses {
		assert.Empty(t, engine.Evaluate(statusChange(status, status)), string(status))
	}
}

func TestEvaluate_TransitionTable(t *testing.T) {
	tests := []struct {
		name   string
		prev   domain.TransactionStatus
		next   domain.TransactionStatus
		titles []string
		events []domain.EventType
	}{
		{
			name:   "contingency",
			prev:   domain.StatusUnderContract,
			next:   domain.StatusContingencyPeriod,
			titles: []string{"Review inspection report", "Negotiate repairs or credits"},
			events: []domain.EventType{domain.EventDeadlineCreated},
		},
		{
			name:   "clear to close",
			prev:   domain.StatusContingencyPeriod,
			next:   domain.StatusClearToClose,
			titles: []string{"Final walkthrough", "Wire transfer verification"},
			events: []domain.EventType{domain.EventMilestoneReached},
		},
		{
			name: "closed has no rule",
			prev: domain.StatusClearToClose,
			next: domain.StatusClosed,
		},
		{
			name:   "skipping straight to clear to close",
			prev:   domain.StatusActive,
			next:   domain.StatusClearToClose,
			titles: []string{"Final walkthrough", "Wire transfer verification"},
			events: []domain.EventType{domain.EventMilestoneReached},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var titles []string
			var events []domain.EventType
			for _, a := range NewEngine().Evaluate(statusChange(tt.prev, tt.next)) {
				if a.Task != nil {
					titles = append(titles, a.Task.Title)
				}
				if a.Event != nil {
					events = append(events, a.Event.Type)
				}
			}
			assert.Equal(t, tt.titles, titles)
			assert.Equal(t, tt.events, events)
		})
	}
}

func TestEvaluate_ContingencyOffsets(t *testing.T) {
	actions := NewEngine().Evaluate(statusChange(domain.StatusUnderContract, domain.StatusContingencyPeriod))
	require.Len(t, actions, 3)

	assert.Equal(t, at.Add(3*24*time.Hour), actions[0].Task.DueDate)
	assert.Equal(t, domain.TaskPriorityHigh, actions[0].Task.Priority)
	assert.Equal(t, at.Add(5*24*time.Hour), actions[1].Task.DueDate)
	assert.Equal(t, domain.TaskPriorityMedium, actions[1].Task.Priority)
	assert.Equal(t, "2024-07-08T15:00:00Z", actions[2].Event.Payload["dueDate"])
}

func TestEvaluate_AllTasksCompleted(t *testing.T) {
	engine := NewEngine()
	done := domain.Task{ID: "a", Status: domain.TaskStatusDone}
	open := domain.Task{ID: "b", Status: domain.TaskStatusInProgress}

	assert.Empty(t, engine.Evaluate(Trigger{Kind: TriggerTaskCompleted, At: at}))
	assert.Empty(t, engine.Evaluate(Trigger{Kind: TriggerTaskCompleted, Tasks: []domain.Task{done, open}, At: at}))

	actions := engine.Evaluate(Trigger{Kind: TriggerTaskCompleted, Tasks: []domain.Task{done}, At: at})
	require.Len(t, actions, 1)
	assert.Equal(t, MilestoneAllTasksCompleted, actions[0].Event.Payload["milestone"])

	// a status trigger never evaluates the task set
	assert.Empty(t, engine.Evaluate(Trigger{Kind: TriggerStatusChange, Tasks: []domain.Task{done}, At: at}))
}

func TestEngine_CustomRulesKeepOrder(t *testing.T) {
	first := func(Trigger) []Action { return []Action{EmitEvent("first", nil)} }
	second := func(Trigger) []Action { return []Action{EmitEvent("second", nil)} }

	actions := NewEngine(first, second).Evaluate(Trigger{})
	require.Len(t, actions, 2)
	assert.Equal(t, domain.EventType("first"), actions[0].Event.Type)
	assert.Equal(t, domain.EventType("second"), actions[1].Event.Type)
}
