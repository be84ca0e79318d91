// Package memstore is an in-process IStorage used by tests and by the
// "memory" database driver. The change feed is not backed: there are no
// triggers, so the changelog methods report nothing to relay.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dealtrail/internal/domain"

	"github.com/google/uuid"
)

type Storage struct {
	mu     sync.RWMutex
	seq    int64
	events []domain.Event
	ids    map[string]struct{}
	tasks  []domain.TaskRow
	dlq    []domain.ChangeRecord

	// FailInsertTask makes InsertTask fail for matching rows.
	FailInsertTask func(domain.TaskRow) error
	// FailInsertEvent makes InsertEvent fail for matching events.
	FailInsertEvent func(domain.Event) error
}

func New() *Storage {
	return &Storage{ids: make(map[string]struct{})}
}

func (s *Storage) InsertEvent(_ context.Context, event domain.Event) (domain.Event, error) {
	if s.FailInsertEvent != nil {
		if err := s.FailInsertEvent(event); err != nil {
			return domain.Event{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[event.ID]; dup {
		return domain.Event{}, fmt.Errorf("event %s already exists", event.ID)
	}
	s.seq++
	event.Sequence = s.seq
	event.Payload = clonePayload(event.Payload)
	s.ids[event.ID] = struct{}{}
	s.events = append(s.events, event)
	return event, nil
}

func (s *Storage) SelectEvents(_ context.Context, agg domain.Aggregate) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Event
	for _, ev := range s.events {
		if ev.Aggregate() == agg {
			ev.Payload = clonePayload(ev.Payload)
			res = append(res, ev)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].Before(res[j])
	})
	return res, nil
}

func (s *Storage) InsertTask(_ context.Context, task domain.TaskRow) (domain.TaskRow, error) {
	if s.FailInsertTask != nil {
		if err := s.FailInsertTask(task); err != nil {
			return domain.TaskRow{}, err
		}
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusTodo
	}
	if task.Priority == "" {
		task.Priority = domain.TaskPriorityMedium
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return task, nil
}

func (s *Storage) SelectTasks(_ context.Context, transactionID string) ([]domain.TaskRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.TaskRow
	for _, t := range s.tasks {
		if t.TransactionID == transactionID {
			res = append(res, t)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *Storage) UpdateTask(_ context.Context, id string, patch domain.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID != id {
			continue
		}
		if patch.Status != nil {
			s.tasks[i].Status = *patch.Status
		}
		if patch.Assignee != nil {
			assignee := *patch.Assignee
			s.tasks[i].Assignee = &assignee
		}
		if patch.DueDate != nil {
			due := *patch.DueDate
			s.tasks[i].DueDate = &due
		}
		return nil
	}
	return fmt.Errorf("task %s: %w", id, domain.ErrorNotFound)
}

func (s *Storage) GetChangeIdsForTable(context.Context, string, string) ([]int64, error) {
	return nil, nil
}

func (s *Storage) GetChangesByTasks(context.Context, []domain.ChangeTask, string) ([]domain.ChangeRecord, error) {
	return nil, nil
}

func (s *Storage) PushChangeDlq(_ context.Context, change domain.ChangeRecord, _ error, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, change)
	return nil
}

// DeadLetters returns the changes pushed to the dead letter queue.
func (s *Storage) DeadLetters() []domain.ChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChangeRecord(nil), s.dlq...)
}

func clonePayload(p map[string]any) map[string]any {
	res := make(map[string]any, len(p))
	for k, v := range p {
		res[k] = v
	}
	return res
}
