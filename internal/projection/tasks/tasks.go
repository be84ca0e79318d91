// Package tasks folds task lifecycle events into the current task set.
package tasks

import (
	"sort"
	"time"

	"dealtrail/internal/domain"
)

// Project replays events from scratch and returns the tasks in the order of
// their first creation. Mutations of unknown tasks and events whose payload
// cannot be interpreted are ignored.
func Project(events []domain.Event) []domain.Task {
	ordered := append([]domain.Event(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Before(ordered[j])
	})

	var order []string
	byID := make(map[string]*domain.Task)

	for _, ev := range ordered {
		taskID, ok := ev.PayloadString("taskId")
		if !ok {
			continue
		}
		switch ev.Type {
		case domain.EventTaskCreated, domain.EventTaskAutoCreated:
			if _, exists := byID[taskID]; exists {
				continue
			}
			byID[taskID] = created(taskID, ev)
			order = append(order, taskID)
			continue
		}

		task, exists := byID[taskID]
		if !exists {
			continue
		}
		switch ev.Type {
		case domain.EventTaskAssigned:
			if assignee, ok := ev.PayloadString("assignee"); ok {
				task.Assignee = assignee
			}
		case domain.EventTaskDueDateSet:
			if due, ok := payloadTime(ev, "dueDate"); ok {
				task.DueDate = &due
			}
		case domain.EventTaskStatusChanged:
			raw, _ := ev.PayloadString("status")
			if status, ok := domain.ParseTaskStatus(raw); ok {
				task.Status = status
				task.Completed = status == domain.TaskStatusDone
			}
		case domain.EventTaskCompleted, domain.EventSystemTaskCompleted:
			task.Status = domain.TaskStatusDone
			task.Completed = true
		}
	}

	res := make([]domain.Task, 0, len(order))
	for _, id := range order {
		res = append(res, *byID[id])
	}
	return res
}

func created(taskID string, ev domain.Event) *domain.Task {
	task := &domain.Task{
		ID:            taskID,
		Status:        domain.TaskStatusTodo,
		Priority:      domain.TaskPriorityMedium,
		SourceEventID: ev.ID,
	}
	task.Title, _ = ev.PayloadString("title")
	if p, ok := ev.PayloadString("priority"); ok {
		task.Priority = domain.TaskPriority(p)
	}
	if assignee, ok := ev.PayloadString("assignee"); ok {
		task.Assignee = assignee
	}
	if due, ok := payloadTime(ev, "dueDate"); ok {
		task.DueDate = &due
	}
	return task
}

// AllDone reports whether tasks is non-empty and every task is done.
func AllDone(tasks []domain.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != domain.TaskStatusDone {
			return false
		}
	}
	return true
}

func payloadTime(ev domain.Event, key string) (time.Time, bool) {
	switch v := ev.Payload[key].(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
