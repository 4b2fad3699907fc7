// Package memory provides process-local implementations of the domain
// stores for tests and single-process development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"imagebot/internal/domain"
)

// TaskStore is a mutex-guarded map. Transition holds the lock across the
// compare and the write, which gives the same atomicity as the SQL update.
type TaskStore struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*domain.Task
	now    func() time.Time
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[int64]*domain.Task), now: time.Now}
}

func (s *TaskStore) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	stored := task.Clone()
	stored.ID = s.nextID
	stored.Status = domain.TaskStatusPending
	stored.RetryCount = 0
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.tasks[stored.ID] = stored
	return stored.Clone(), nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task.Clone(), nil
}

func (s *TaskStore) Transition(ctx context.Context, id int64, from, to domain.TaskStatus, update domain.TaskUpdate) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if task.Status != from {
		return nil, fmt.Errorf("%w: task %d is %s, expected %s", domain.ErrStaleTransition, id, task.Status, from)
	}
	update.Apply(task)
	task.Status = to
	task.UpdatedAt = s.now()
	return task.Clone(), nil
}

func (s *TaskStore) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Task
	for _, task := range s.tasks {
		if task.AccountID == accountID {
			out = append(out, *task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.TaskStatus]int64)
	for _, task := range s.tasks {
		counts[task.Status]++
	}
	return counts, nil
}

var _ domain.TaskStore = (*TaskStore)(nil)
