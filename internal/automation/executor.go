package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dealtrail/internal/domain"
	"dealtrail/internal/metrics"
	"dealtrail/internal/store"
	"dealtrail/internal/tracing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type IEventAppender interface {
	Append(ctx context.Context, agg domain.Aggregate, ev domain.ValidatedEvent, actor domain.Actor) (domain.Event, error)
}

type IValidator interface {
	Validate(eventType domain.EventType, payload map[string]any, role domain.Role) (domain.ValidatedEvent, error)
}

// Failure is one action that could not be persisted.
type Failure struct {
	Index  int
	Action Action
	Err    error
}

type Result struct {
	CreatedTasks  []domain.TaskRow
	CreatedEvents []domain.Event
	Failures      []Failure
}

// Err joins the failures, nil when every action succeeded.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("action %d (%s): %w", f.Index, f.Action.Type, f.Err))
	}
	return errors.Join(errs...)
}

type Executor struct {
	tasks     store.ITaskStorage
	log       IEventAppender
	validator IValidator
	metrics   metrics.IMetrics
	clock     func() time.Time
	logger    *slog.Logger
}

type Deps struct {
	Tasks     store.ITaskStorage
	Log       IEventAppender
	Validator IValidator
	Metrics   metrics.IMetrics
	Clock     func() time.Time
}

func NewExecutor(deps Deps) *Executor {
	e := &Executor{
		tasks:     deps.Tasks,
		log:       deps.Log,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    slog.Default().With("component", "automation"),
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNoop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

// Persist executes actions for the transaction in order. A failing action is
// logged and recorded in the result; the remaining actions still run.
func (e *Executor) Persist(ctx context.Context, actions []Action, transactionID string) Result {
	ctx, span := tracing.Tracer().Start(ctx, "automation.Persist", trace.WithAttributes(
		attribute.String("dealtrail.transaction_id", transactionID),
		attribute.Int("dealtrail.actions", len(actions)),
	))
	defer span.End()

	var res Result
	agg := domain.TransactionAggregate(transactionID)
	for i, action := range actions {
		var err error
		switch action.Type {
		case ActionCreateTask:
			err = e.createTask(ctx, agg, action.Task, &res)
		case ActionEmitEvent:
			err = e.emitEvent(ctx, agg, action.Event, &res)
		default:
			err = fmt.Errorf("unknown action type %q", action.Type)
		}
		e.metrics.AutomationAction(string(action.Type), err == nil)
		if err != nil {
			e.logger.WarnContext(ctx, "automation: action skipped",
				"transaction_id", transactionID, "index", i, "type", action.Type, "error", err)
			span.RecordError(err)
			res.Failures = append(res.Failures, Failure{Index: i, Action: action, Err: err})
		}
	}
	return res
}

// createTask inserts the task row, then appends its task.auto_created audit
// event. No audit event is written for a row that failed to insert.
func (e *Executor) createTask(ctx context.Context, agg domain.Aggregate, action *TaskAction, res *Result) error {
	if action == nil {
		return errors.New("create_task action without task")
	}
	due := action.DueDate.UTC()
	row, err := e.tasks.InsertTask(ctx, domain.TaskRow{
		ID:            uuid.NewString(),
		TransactionID: agg.ID,
		Title:         action.Title,
		Status:        domain.TaskStatusTodo,
		Priority:      action.Priority,
		DueDate:       &due,
		CreatedAt:     e.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("tasks.InsertTask: %w", err)
	}
	res.CreatedTasks = append(res.CreatedTasks, row)

	ev, err := e.append(ctx, agg, domain.EventTaskAutoCreated, map[string]any{
		"taskId":   row.ID,
		"title":    row.Title,
		"priority": string(row.Priority),
		"dueDate":  due.Format(time.RFC3339),
		"reason":   action.Reason,
	})
	if err != nil {
		return fmt.Errorf("audit event for task %s: %w", row.ID, err)
	}
	res.CreatedEvents = append(res.CreatedEvents, ev)
	return nil
}

func (e *Executor) emitEvent(ctx context.Context, agg domain.Aggregate, action *EventAction, res *Result) error {
	if action == nil {
		return errors.New("emit_event action without event")
	}
	ev, err := e.append(ctx, agg, action.Type, action.Payload)
	if err != nil {
		return err
	}
	res.CreatedEvents = append(res.CreatedEvents, ev)
	return nil
}

func (e *Executor) append(ctx context.Context, agg domain.Aggregate, eventType domain.EventType, payload map[string]any) (domain.Event, error) {
	validated, err := e.validator.Validate(eventType, payload, domain.RoleSystem)
	if err != nil {
		return domain.Event{}, fmt.Errorf("validator.Validate: %w", err)
	}
	ev, err := e.log.Append(ctx, agg, validated, domain.SystemActor)
	if err != nil {
		return domain.Event{}, fmt.Errorf("log.Append: %w", err)
	}
	return ev, nil
}
