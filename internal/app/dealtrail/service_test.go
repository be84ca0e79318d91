package dealtrail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealtrail/internal/automation"
	"dealtrail/internal/derive"
	"dealtrail/internal/domain"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/registry"
	"dealtrail/internal/store/memstore"
	"dealtrail/internal/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var agent = domain.Actor{ID: "agent-1", Role: domain.RoleAgent}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newService(t *testing.T, automate bool) (*Service, *memstore.Storage) {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)

	storage := memstore.New()
	clock := &tickingClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	log := eventlog.New(eventlog.Deps{Storage: storage, Clock: clock.Now})
	v := validator.New(reg)
	return NewService(ServiceDeps{
		Log:       log,
		Validator: v,
		Executor: automation.NewExecutor(automation.Deps{
			Tasks:     storage,
			Log:       log,
			Validator: v,
			Clock:     clock.Now,
		}),
		Tasks:    storage,
		Automate: automate,
	}), storage
}

func milestones(events []domain.Event, name string) int {
	n := 0
	for _, ev := range events {
		if m, _ := ev.PayloadString("milestone"); ev.Type == domain.EventMilestoneReached && m == name {
			n++
		}
	}
	return n
}

func TestService_TaskCreatedThenCompleted(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(t, true)
	tx := domain.TransactionAggregate("tx-1")
	taskID := uuid.NewString()

	_, err := svc.AppendEvent(ctx, tx, domain.EventTaskCreated, map[string]any{"taskId": taskID, "title": "X"}, agent)
	require.NoError(t, err)
	res, err := svc.AppendEvent(ctx, tx, domain.EventTaskCompleted, map[string]any{"taskId": taskID}, agent)
	require.NoError(t, err)

	got, err := svc.Tasks(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].Title)
	assert.Equal(t, domain.TaskStatusDone, got[0].Status)
	assert.True(t, got[0].Completed)

	require.Len(t, res.Automation.CreatedEvents, 1)
	assert.Equal(t, automation.MilestoneAllTasksCompleted, res.Automation.CreatedEvents[0].Payload["milestone"])

	rows, err := storage.SelectTasks(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TaskStatusDone, rows[0].Status)
}

func TestService_ChangeStatusRunsAutomation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)

	res, err := svc.ChangeStatus(ctx, "tx-2", domain.StatusUnderContract, agent)
	require.NoError(t, err)
	require.NoError(t, res.Automation.Err())
	assert.Equal(t, "Active", res.Event.Payload["previousStatus"])
	require.Len(t, res.Automation.CreatedTasks, 1)
	assert.Equal(t, "Schedule home inspection", res.Automation.CreatedTasks[0].Title)
	assert.True(t, res.Automation.CreatedTasks[0].DueDate.Equal(res.Event.CreatedAt.Add(7*24*time.Hour)))
	require.Len(t, res.Automation.CreatedEvents, 2)
	assert.Equal(t, domain.EventTaskAutoCreated, res.Automation.CreatedEvents[0].Type)
	assert.Equal(t, domain.EventMilestoneReached, res.Automation.CreatedEvents[1].Type)

	status, err := svc.Status(ctx, "tx-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnderContract, status)

	// re-saving the same status is not a transition
	res, err = svc.ChangeStatus(ctx, "tx-2", domain.StatusUnderContract, agent)
	require.NoError(t, err)
	assert.Equal(t, "Under Contract", res.Event.Payload["previousStatus"])
	assert.Empty(t, res.Automation.CreatedTasks)
	assert.Empty(t, res.Automation.CreatedEvents)

	got, err := svc.Tasks(ctx, "tx-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TaskStatusTodo, got[0].Status)
}

func TestService_PreviousStatusFilledFromLog(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, false)
	tx := domain.TransactionAggregate("tx-3")

	_, err := svc.AppendEvent(ctx, tx, domain.EventTransactionStatusChanged, map[string]any{"newStatus": "Under Contract"}, agent)
	require.NoError(t, err)
	res, err := svc.AppendEvent(ctx, tx, domain.EventTransactionStatusChanged, map[string]any{"newStatus": "Clear to Close"}, agent)
	require.NoError(t, err)

	assert.Equal(t, "Under Contract", res.Event.Payload["previousStatus"])
	assert.Empty(t, res.Automation.CreatedEvents)

	_, err = svc.AppendEvent(ctx, domain.ContactAggregate("c-1"), domain.EventTransactionStatusChanged, map[string]any{"newStatus": "Closed"}, agent)
	assert.ErrorIs(t, err, domain.ErrorInvalidPayload)
}

func TestService_SuppliedPreviousStatusIsReplaced(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)
	tx := domain.TransactionAggregate("tx-3b")

	_, err := svc.ChangeStatus(ctx, "tx-3b", domain.StatusUnderContract, agent)
	require.NoError(t, err)

	res, err := svc.AppendEvent(ctx, tx, domain.EventTransactionStatusChanged, map[string]any{
		"previousStatus": "Active",
		"newStatus":      "Under Contract",
	}, agent)
	require.NoError(t, err)
	assert.Equal(t, "Under Contract", res.Event.Payload["previousStatus"])
	assert.Empty(t, res.Automation.CreatedTasks)
	assert.Empty(t, res.Automation.CreatedEvents)

	events, err := svc.Events(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, milestones(events, automation.MilestoneOfferAccepted))
}

func TestService_ConcurrentStatusChangesAutomateOnce(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(t, true)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ChangeStatus(ctx, "tx-race", domain.StatusUnderContract, agent)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := svc.Events(ctx, domain.TransactionAggregate("tx-race"))
	require.NoError(t, err)
	assert.Equal(t, 1, milestones(events, automation.MilestoneOfferAccepted))

	rows, err := storage.SelectTasks(ctx, "tx-race")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestService_ConcurrentCompletionsMilestoneOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)

	created, err := svc.CreateTask(ctx, "tx-race-2", "Order appraisal", domain.TaskPriorityHigh, nil, agent)
	require.NoError(t, err)
	taskID := created.Event.Payload["taskId"].(string)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CompleteTask(ctx, "tx-race-2", taskID, agent)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := svc.Events(ctx, domain.TransactionAggregate("tx-race-2"))
	require.NoError(t, err)
	assert.Equal(t, 1, milestones(events, automation.MilestoneAllTasksCompleted))
}

func TestService_AllTasksMilestoneOncePerTaskSet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)

	first, err := svc.CreateTask(ctx, "tx-4", "Order appraisal", domain.TaskPriorityHigh, nil, agent)
	require.NoError(t, err)
	firstID := first.Event.Payload["taskId"].(string)

	_, err = svc.CompleteTask(ctx, "tx-4", firstID, agent)
	require.NoError(t, err)
	res, err := svc.CompleteTask(ctx, "tx-4", firstID, agent)
	require.NoError(t, err)
	assert.Empty(t, res.Automation.CreatedEvents)

	events, err := svc.Events(ctx, domain.TransactionAggregate("tx-4"))
	require.NoError(t, err)
	assert.Equal(t, 1, milestones(events, automation.MilestoneAllTasksCompleted))

	second, err := svc.CreateTask(ctx, "tx-4", "Sign disclosures", "", nil, agent)
	require.NoError(t, err)
	_, err = svc.AppendEvent(ctx, domain.TransactionAggregate("tx-4"), domain.EventTaskStatusChanged, map[string]any{
		"taskId": second.Event.Payload["taskId"],
		"status": "done",
	}, agent)
	require.NoError(t, err)

	events, err = svc.Events(ctx, domain.TransactionAggregate("tx-4"))
	require.NoError(t, err)
	assert.Equal(t, 2, milestones(events, automation.MilestoneAllTasksCompleted))
}

func TestService_RejectedEventIsNotAppended(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)
	tx := domain.TransactionAggregate("tx-5")

	_, err := svc.AppendEvent(ctx, tx, domain.EventSystemTaskCompleted, map[string]any{"taskId": uuid.NewString()},
		domain.Actor{ID: "b-1", Role: domain.RoleBuyer})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrorRoleNotAllowed))

	var rej *validator.Rejection
	assert.True(t, errors.As(err, &rej))

	_, err = svc.AppendEvent(ctx, tx, "HouseSold", nil, agent)
	assert.ErrorIs(t, err, domain.ErrorUnknownEventType)

	events, err := svc.Events(ctx, tx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestService_AutomationDisabled(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(t, false)

	res, err := svc.ChangeStatus(ctx, "tx-6", domain.StatusClearToClose, agent)
	require.NoError(t, err)
	assert.Empty(t, res.Automation.CreatedTasks)

	rows, err := storage.SelectTasks(ctx, "tx-6")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestService_TaskMutationsAreMirrored(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(t, false)
	tx := domain.TransactionAggregate("tx-7")

	created, err := svc.CreateTask(ctx, "tx-7", "Book movers", domain.TaskPriorityLow, nil, agent)
	require.NoError(t, err)
	taskID := created.Event.Payload["taskId"]

	_, err = svc.AppendEvent(ctx, tx, domain.EventTaskAssigned, map[string]any{"taskId": taskID, "assignee": "attorney-1"}, agent)
	require.NoError(t, err)
	_, err = svc.AppendEvent(ctx, tx, domain.EventTaskDueDateSet, map[string]any{"taskId": taskID, "dueDate": "2024-07-01T12:00:00Z"}, agent)
	require.NoError(t, err)
	// unknown task ids are folded away and never reach the table
	_, err = svc.AppendEvent(ctx, tx, domain.EventTaskAssigned, map[string]any{"taskId": uuid.NewString(), "assignee": "nobody"}, agent)
	require.NoError(t, err)

	rows, err := storage.SelectTasks(ctx, "tx-7")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Assignee)
	assert.Equal(t, "attorney-1", *rows[0].Assignee)
	require.NotNil(t, rows[0].DueDate)
	assert.True(t, rows[0].DueDate.Equal(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, domain.TaskPriorityLow, rows[0].Priority)

	projected, err := svc.Tasks(ctx, "tx-7")
	require.NoError(t, err)
	require.Len(t, projected, 1)
	assert.Equal(t, "attorney-1", projected[0].Assignee)
}

func TestService_TimelineAndDerivation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, true)
	tx := domain.TransactionAggregate("tx-8")

	_, err := svc.AppendEvent(ctx, tx, domain.EventOfferSubmitted, map[string]any{
		"offerPrice": 500000, "offerDate": "2024-01-01",
	}, domain.Actor{ID: "b-1", Role: domain.RoleBuyer})
	require.NoError(t, err)

	items, err := svc.Timeline(ctx, tx, domain.RoleBuyer)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Title, "Your offer was submitted")

	actions, err := svc.SuggestedActions(ctx, "tx-8", domain.RoleAgent)
	require.NoError(t, err)
	assert.True(t, hasAction(actions, "move-under-contract"))

	_, err = svc.ChangeStatus(ctx, "tx-8", domain.StatusUnderContract, agent)
	require.NoError(t, err)
	actions, err = svc.SuggestedActions(ctx, "tx-8", domain.RoleAgent)
	require.NoError(t, err)
	assert.True(t, hasAction(actions, "clear-to-close"))
	assert.False(t, hasAction(actions, "move-under-contract"))

	state, ok, err := svc.EmptyState(ctx, "tx-8", "documents", domain.RoleBuyer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "No documents", state.Title)

	assert.NotEmpty(t, svc.EventTemplates(domain.RoleAgent))
}

func TestCurrentStatus(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.StatusActive, CurrentStatus(nil))
	assert.Equal(t, domain.StatusClosed, CurrentStatus([]domain.Event{
		{Type: domain.EventTransactionStatusChanged, Sequence: 2, CreatedAt: at.Add(time.Hour), Payload: map[string]any{"newStatus": "Closed"}},
		{Type: domain.EventTransactionStatusChanged, Sequence: 1, CreatedAt: at, Payload: map[string]any{"newStatus": "Clear to Close"}},
	}))
}

func hasAction(actions []derive.SuggestedAction, id string) bool {
	for _, a := range actions {
		if a.ID == id {
			return true
		}
	}
	return false
}
