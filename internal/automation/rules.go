// Package automation turns transaction status transitions and task-set
// completion into follow-up actions, and persists those actions.
package automation

import (
	"time"

	"dealtrail/internal/domain"
	"dealtrail/internal/projection/tasks"
)

type ActionType string

const (
	ActionCreateTask ActionType = "create_task"
	ActionEmitEvent  ActionType = "emit_event"
)

// Milestones emitted by the default rules.
const (
	MilestoneOfferAccepted     = "Offer Accepted"
	MilestoneClearToClose      = "Clear to Close"
	MilestoneAllTasksCompleted = "All Tasks Completed"
)

type TaskAction struct {
	Title    string
	Priority domain.TaskPriority
	DueDate  time.Time
	Reason   string
}

type EventAction struct {
	Type    domain.EventType
	Payload map[string]any
}

// Action is one follow-up produced by a rule. Exactly one of Task and Event
// is set, matching Type.
type Action struct {
	Type  ActionType
	Task  *TaskAction
	Event *EventAction
}

func CreateTask(title string, priority domain.TaskPriority, due time.Time, reason string) Action {
	return Action{
		Type: ActionCreateTask,
		Task: &TaskAction{Title: title, Priority: priority, DueDate: due, Reason: reason},
	}
}

func EmitEvent(eventType domain.EventType, payload map[string]any) Action {
	return Action{
		Type:  ActionEmitEvent,
		Event: &EventAction{Type: eventType, Payload: payload},
	}
}

type TriggerKind string

const (
	TriggerStatusChange  TriggerKind = "status_change"
	TriggerTaskCompleted TriggerKind = "task_completed"
)

// Trigger is the state change a rule reacts to. Status triggers carry the
// previous and new transaction status; task triggers carry the full current
// task set. At anchors relative due dates.
type Trigger struct {
	Kind              TriggerKind
	PreviousStatus    domain.TransactionStatus
	TransactionStatus domain.TransactionStatus
	Tasks             []domain.Task
	At                time.Time
}

type Rule func(Trigger) []Action

type Engine struct {
	rules []Rule
}

// NewEngine evaluates rules in the given order. Without rules it uses
// DefaultRules.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Evaluate runs every rule against the trigger and concatenates their
// actions in rule order.
func (e *Engine) Evaluate(trigger Trigger) []Action {
	var actions []Action
	for _, rule := range e.rules {
		actions = append(actions, rule(trigger)...)
	}
	return actions
}

// DefaultRules: Under Contract, Contingency Period, Clear to Close, then the
// all-tasks-done milestone.
func DefaultRules() []Rule {
	return []Rule{
		UnderContractRule,
		ContingencyRule,
		ClearToCloseRule,
		AllTasksCompletedRule,
	}
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// enters reports an actual transition into target.
func enters(t Trigger, target domain.TransactionStatus) bool {
	return t.Kind == TriggerStatusChange &&
		t.PreviousStatus != target &&
		t.TransactionStatus == target
}

func UnderContractRule(t Trigger) []Action {
	if !enters(t, domain.StatusUnderContract) {
		return nil
	}
	reason := "Transaction moved to " + string(domain.StatusUnderContract)
	return []Action{
		CreateTask("Schedule home inspection", domain.TaskPriorityHigh, t.At.Add(days(7)), reason),
		EmitEvent(domain.EventMilestoneReached, map[string]any{
			"milestone":   MilestoneOfferAccepted,
			"description": "The offer was accepted and the transaction is under contract.",
		}),
	}
}

func ContingencyRule(t Trigger) []Action {
	if !enters(t, domain.StatusContingencyPeriod) {
		return nil
	}
	reason := "Transaction moved to " + string(domain.StatusContingencyPeriod)
	return []Action{
		CreateTask("Review inspection report", domain.TaskPriorityHigh, t.At.Add(days(3)), reason),
		CreateTask("Negotiate repairs or credits", domain.TaskPriorityMedium, t.At.Add(days(5)), reason),
		EmitEvent(domain.EventDeadlineCreated, map[string]any{
			"title":        "Contingency period ends",
			"dueDate":      t.At.Add(days(7)).UTC().Format(time.RFC3339),
			"deadlineType": "inspection",
		}),
	}
}

func ClearToCloseRule(t Trigger) []Action {
	if !enters(t, domain.StatusClearToClose) {
		return nil
	}
	reason := "Transaction moved to " + string(domain.StatusClearToClose)
	return []Action{
		CreateTask("Final walkthrough", domain.TaskPriorityHigh, t.At.Add(days(2)), reason),
		CreateTask("Wire transfer verification", domain.TaskPriorityHigh, t.At.Add(days(1)), reason),
		EmitEvent(domain.EventMilestoneReached, map[string]any{
			"milestone":   MilestoneClearToClose,
			"description": "All conditions are met and the transaction is ready to close.",
		}),
	}
}

func AllTasksCompletedRule(t Trigger) []Action {
	if t.Kind != TriggerTaskCompleted || !tasks.AllDone(t.Tasks) {
		return nil
	}
	return []Action{
		EmitEvent(domain.EventMilestoneReached, map[string]any{
			"milestone":   MilestoneAllTasksCompleted,
			"description": "Every task on the transaction is done.",
		}),
	}
}
