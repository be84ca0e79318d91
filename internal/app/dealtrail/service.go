package dealtrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dealtrail/internal/automation"
	"dealtrail/internal/derive"
	"dealtrail/internal/domain"
	"dealtrail/internal/eventlog"
	"dealtrail/internal/metrics"
	"dealtrail/internal/projection/tasks"
	"dealtrail/internal/projection/timeline"
	"dealtrail/internal/store"
	"dealtrail/internal/validator"

	"github.com/google/uuid"
)

// Service is the write and read path used by the UI boundary:
// validate, append, automate, and project.
type Service struct {
	log       *eventlog.Log
	validator *validator.Validator
	engine    *automation.Engine
	executor  *automation.Executor
	tasks     store.ITaskStorage
	timeline  *timeline.Projector
	catalog   *derive.Catalog
	metrics   metrics.IMetrics
	automate  bool
	locks     *eventlog.KeyedMutex
	logger    *slog.Logger
}

type ServiceDeps struct {
	Log       *eventlog.Log
	Validator *validator.Validator
	Engine    *automation.Engine
	Executor  *automation.Executor
	Tasks     store.ITaskStorage
	Timeline  *timeline.Projector
	Catalog   *derive.Catalog
	Metrics   metrics.IMetrics
	// Automate runs the automation engine after status and task events.
	Automate bool
}

func NewService(deps ServiceDeps) *Service {
	s := &Service{
		log:       deps.Log,
		validator: deps.Validator,
		engine:    deps.Engine,
		executor:  deps.Executor,
		tasks:     deps.Tasks,
		timeline:  deps.Timeline,
		catalog:   deps.Catalog,
		metrics:   deps.Metrics,
		automate:  deps.Automate,
		locks:     eventlog.NewKeyedMutex(),
		logger:    slog.Default().With("component", "service"),
	}
	if s.engine == nil {
		s.engine = automation.NewEngine()
	}
	if s.timeline == nil {
		s.timeline = timeline.NewProjector(timeline.DefaultTemplates())
	}
	if s.catalog == nil {
		s.catalog = derive.DefaultCatalog(deps.Validator.Registry())
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}
	return s
}

// AppendResult is the stored event plus whatever automation it caused.
type AppendResult struct {
	Event      domain.Event
	Automation automation.Result
}

// AppendEvent validates and appends one event. Validation errors wrap
// *validator.Rejection; storage errors wrap domain.ErrorPersistence. Failed
// automation never fails the append, it is reported in the result.
//
// The status read, the append and the automation it triggers run under one
// lock per aggregate. previousStatus always comes from the log.
func (s *Service) AppendEvent(ctx context.Context, agg domain.Aggregate, eventType domain.EventType, payload map[string]any, actor domain.Actor) (AppendResult, error) {
	if agg.ID == "" {
		return AppendResult{}, fmt.Errorf("%w: empty aggregate id", domain.ErrorInvalidPayload)
	}
	if eventType == domain.EventTransactionStatusChanged && agg.Kind != domain.AggregateTransaction {
		return AppendResult{}, fmt.Errorf("%w: status changes belong to a transaction", domain.ErrorInvalidPayload)
	}

	unlock := s.locks.Lock(agg.Key())
	defer unlock()

	if eventType == domain.EventTransactionStatusChanged {
		current, err := s.Status(ctx, agg.ID)
		if err != nil {
			return AppendResult{}, err
		}
		if given, ok := payload["previousStatus"]; ok && given != string(current) {
			s.logger.DebugContext(ctx, "service: previousStatus replaced from log",
				"transaction_id", agg.ID, "given", given, "current", current)
		}
		payload = withValue(payload, "previousStatus", string(current))
	}

	validated, err := s.validator.Validate(eventType, payload, actor.Role)
	if err != nil {
		s.metrics.EventRejected(rejectionKind(err))
		return AppendResult{}, fmt.Errorf("validator.Validate: %w", err)
	}
	ev, err := s.log.Append(ctx, agg, validated, actor)
	if err != nil {
		return AppendResult{}, fmt.Errorf("log.Append: %w", err)
	}

	res := AppendResult{Event: ev}
	s.mirrorTask(ctx, ev)
	if s.automate && agg.Kind == domain.AggregateTransaction {
		res.Automation = s.afterAppend(ctx, ev)
	}
	return res, nil
}

// ChangeStatus records a transition of the transaction to status.
func (s *Service) ChangeStatus(ctx context.Context, transactionID string, status domain.TransactionStatus, actor domain.Actor) (AppendResult, error) {
	return s.AppendEvent(ctx, domain.TransactionAggregate(transactionID), domain.EventTransactionStatusChanged, map[string]any{
		"newStatus": string(status),
	}, actor)
}

// CreateTask appends task.created for a fresh task id.
func (s *Service) CreateTask(ctx context.Context, transactionID, title string, priority domain.TaskPriority, due *time.Time, actor domain.Actor) (AppendResult, error) {
	payload := map[string]any{
		"taskId": uuid.NewString(),
		"title":  title,
	}
	if priority != "" {
		payload["priority"] = string(priority)
	}
	if due != nil {
		payload["dueDate"] = due.UTC().Format(time.RFC3339)
	}
	return s.AppendEvent(ctx, domain.TransactionAggregate(transactionID), domain.EventTaskCreated, payload, actor)
}

func (s *Service) CompleteTask(ctx context.Context, transactionID, taskID string, actor domain.Actor) (AppendResult, error) {
	return s.AppendEvent(ctx, domain.TransactionAggregate(transactionID), domain.EventTaskCompleted, map[string]any{
		"taskId": taskID,
	}, actor)
}

func (s *Service) Events(ctx context.Context, agg domain.Aggregate) ([]domain.Event, error) {
	return s.log.Read(ctx, agg)
}

// staffRoles read the raw log unfiltered.
var staffRoles = []domain.Role{domain.RoleAgent, domain.RoleAdmin, domain.RoleSystem}

// EventsFor is Events as seen by viewer. Other roles only get the events
// their timeline would show.
func (s *Service) EventsFor(ctx context.Context, agg domain.Aggregate, viewer domain.Role) ([]domain.Event, error) {
	events, err := s.log.Read(ctx, agg)
	if err != nil {
		return nil, err
	}
	if domain.HasRole(staffRoles, viewer) {
		return events, nil
	}
	visible := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if s.timeline.Visible(ev, viewer) {
			visible = append(visible, ev)
		}
	}
	return visible, nil
}

func (s *Service) Subscribe(ctx context.Context, agg domain.Aggregate, listener eventlog.Listener) (func(), error) {
	return s.log.Subscribe(ctx, agg, listener)
}

// Tasks projects the transaction's current task set from its log.
func (s *Service) Tasks(ctx context.Context, transactionID string) ([]domain.Task, error) {
	events, err := s.log.Read(ctx, domain.TransactionAggregate(transactionID))
	if err != nil {
		return nil, err
	}
	return tasks.Project(events), nil
}

func (s *Service) Timeline(ctx context.Context, agg domain.Aggregate, viewer domain.Role) ([]domain.TimelineItem, error) {
	events, err := s.log.Read(ctx, agg)
	if err != nil {
		return nil, err
	}
	return s.timeline.Project(events, viewer), nil
}

// Status is the newStatus of the last status change, Active for a
// transaction without one.
func (s *Service) Status(ctx context.Context, transactionID string) (domain.TransactionStatus, error) {
	events, err := s.log.Read(ctx, domain.TransactionAggregate(transactionID))
	if err != nil {
		return "", err
	}
	return CurrentStatus(events), nil
}

func (s *Service) SuggestedActions(ctx context.Context, transactionID string, role domain.Role) ([]derive.SuggestedAction, error) {
	status, err := s.Status(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return s.catalog.SuggestedActions(domain.PhaseOf(status), role), nil
}

func (s *Service) EmptyState(ctx context.Context, transactionID, view string, role domain.Role) (derive.EmptyState, bool, error) {
	status, err := s.Status(ctx, transactionID)
	if err != nil {
		return derive.EmptyState{}, false, err
	}
	state, ok := s.catalog.EmptyState(view, domain.PhaseOf(status), role)
	return state, ok, nil
}

func (s *Service) EventTemplates(role domain.Role) []derive.EventTemplate {
	return s.catalog.EventTemplates(role)
}

// CurrentStatus folds the status changes of a transaction log.
func CurrentStatus(events []domain.Event) domain.TransactionStatus {
	status := domain.StatusActive
	for _, ev := range sortedCopy(events) {
		if ev.Type != domain.EventTransactionStatusChanged {
			continue
		}
		if next, ok := ev.PayloadString("newStatus"); ok {
			status = domain.TransactionStatus(next)
		}
	}
	return status
}

func (s *Service) afterAppend(ctx context.Context, ev domain.Event) automation.Result {
	var trigger automation.Trigger
	switch ev.Type {
	case domain.EventTransactionStatusChanged:
		previous, _ := ev.PayloadString("previousStatus")
		next, _ := ev.PayloadString("newStatus")
		trigger = automation.Trigger{
			Kind:              automation.TriggerStatusChange,
			PreviousStatus:    domain.TransactionStatus(previous),
			TransactionStatus: domain.TransactionStatus(next),
			At:                ev.CreatedAt,
		}
	case domain.EventTaskCompleted, domain.EventSystemTaskCompleted, domain.EventTaskStatusChanged:
		events, err := s.log.Read(ctx, ev.Aggregate())
		if err != nil {
			s.logger.WarnContext(ctx, "service: automation skipped", "event_id", ev.ID, "error", err)
			return automation.Result{}
		}
		if milestoneSinceLastTask(events, automation.MilestoneAllTasksCompleted) {
			return automation.Result{}
		}
		trigger = automation.Trigger{
			Kind:  automation.TriggerTaskCompleted,
			Tasks: tasks.Project(events),
			At:    ev.CreatedAt,
		}
	default:
		return automation.Result{}
	}

	actions := s.engine.Evaluate(trigger)
	if len(actions) == 0 {
		return automation.Result{}
	}
	res := s.executor.Persist(ctx, actions, ev.TransactionID)
	if err := res.Err(); err != nil {
		s.logger.WarnContext(ctx, "service: automation partially failed",
			"transaction_id", ev.TransactionID, "trigger", trigger.Kind, "error", err)
	}
	return res
}

// milestoneSinceLastTask reports whether milestone was reached after the
// most recent task creation, so the completion milestone fires once per
// task set.
func milestoneSinceLastTask(events []domain.Event, milestone string) bool {
	reached := false
	for _, ev := range sortedCopy(events) {
		switch ev.Type {
		case domain.EventTaskCreated, domain.EventTaskAutoCreated:
			reached = false
		case domain.EventMilestoneReached:
			if m, _ := ev.PayloadString("milestone"); m == milestone {
				reached = true
			}
		}
	}
	return reached
}

// mirrorTask keeps the tasks table in step with task events. The log stays
// authoritative, so mirror failures are only logged.
func (s *Service) mirrorTask(ctx context.Context, ev domain.Event) {
	if s.tasks == nil || ev.TransactionID == "" {
		return
	}
	taskID, ok := ev.PayloadString("taskId")
	if !ok {
		return
	}

	var err error
	switch ev.Type {
	case domain.EventTaskCreated:
		row := domain.TaskRow{
			ID:            taskID,
			TransactionID: ev.TransactionID,
			Status:        domain.TaskStatusTodo,
			Priority:      domain.TaskPriorityMedium,
			CreatedAt:     ev.CreatedAt,
		}
		row.Title, _ = ev.PayloadString("title")
		if p, ok := ev.PayloadString("priority"); ok {
			row.Priority = domain.TaskPriority(p)
		}
		if assignee, ok := ev.PayloadString("assignee"); ok {
			row.Assignee = &assignee
		}
		if due, ok := payloadTime(ev, "dueDate"); ok {
			row.DueDate = &due
		}
		_, err = s.tasks.InsertTask(ctx, row)
	case domain.EventTaskAssigned:
		if assignee, ok := ev.PayloadString("assignee"); ok {
			err = s.tasks.UpdateTask(ctx, taskID, domain.TaskPatch{Assignee: &assignee})
		}
	case domain.EventTaskDueDateSet:
		if due, ok := payloadTime(ev, "dueDate"); ok {
			err = s.tasks.UpdateTask(ctx, taskID, domain.TaskPatch{DueDate: &due})
		}
	case domain.EventTaskStatusChanged:
		raw, _ := ev.PayloadString("status")
		if status, ok := domain.ParseTaskStatus(raw); ok {
			err = s.tasks.UpdateTask(ctx, taskID, domain.TaskPatch{Status: &status})
		}
	case domain.EventTaskCompleted, domain.EventSystemTaskCompleted:
		done := domain.TaskStatusDone
		err = s.tasks.UpdateTask(ctx, taskID, domain.TaskPatch{Status: &done})
	default:
		return
	}
	if err != nil && !errors.Is(err, domain.ErrorNotFound) {
		s.logger.WarnContext(ctx, "service: task row not mirrored",
			"event_id", ev.ID, "type", ev.Type, "task_id", taskID, "error", err)
	}
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrorUnknownEventType):
		return "unknown_type"
	case errors.Is(err, domain.ErrorRoleNotAllowed):
		return "role_not_allowed"
	case errors.Is(err, domain.ErrorInvalidPayload):
		return "invalid_payload"
	default:
		return "other"
	}
}

func withValue(payload map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out[key] = value
	return out
}

func payloadTime(ev domain.Event, key string) (time.Time, bool) {
	raw, ok := ev.PayloadString(key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func sortedCopy(events []domain.Event) []domain.Event {
	out := append([]domain.Event(nil), events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
