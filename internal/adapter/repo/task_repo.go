package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imagebot/internal/domain"
	"imagebot/internal/infra"
	"imagebot/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskStore on PostgreSQL.
type TaskRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTaskRepository creates a task store backed by the given executor.
func NewTaskRepository(sql infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{sql: sql}
}

// Create inserts task in pending status and returns it with its assigned id.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	out := task.Clone()
	sources := out.SourceRefs
	if sources == nil {
		sources = []string{}
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertTask,
		out.AccountID,
		string(out.Kind),
		string(out.Provider),
		out.Model,
		string(out.Quality),
		string(out.Size),
		out.Prompt,
		sources,
		out.TokensCharged,
	)
	var status string
	if err := row.Scan(&out.ID, &status, &out.RetryCount, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	out.Status = domain.TaskStatus(status)
	return out, nil
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QSelectTaskByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// Transition moves the task from one status to another in a single
// conditional update. A miss is resolved into ErrNotFound or ErrStaleTransition.
func (r *TaskRepositoryPG) Transition(ctx context.Context, id int64, from, to domain.TaskStatus, update domain.TaskUpdate) (*domain.Task, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QTransitionTask,
		id,
		string(from),
		string(to),
		update.RetryCount,
		update.ErrorMessage,
		update.ResultURL,
		update.ResultKey,
		update.DeliveredArtifactID,
		update.ProviderUnitsUsed,
	)
	task, err := scanTask(row)
	if err == nil {
		return task, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("transition task %d: %w", id, err)
	}

	var current string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectTaskStatus, id).Scan(&current); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: task %d is %s, expected %s", domain.ErrStaleTransition, id, current, from)
}

// ListByAccount returns the most recent tasks of an account.
func (r *TaskRepositoryPG) ListByAccount(ctx context.Context, accountID int64, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListTasksByAccount, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// CountByStatus aggregates the number of tasks in each status.
func (r *TaskRepositoryPG) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int64, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QCountTasksByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TaskStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t                                     domain.Task
		kind, provider, quality, size, status string
	)
	if err := row.Scan(
		&t.ID,
		&t.AccountID,
		&kind,
		&provider,
		&t.Model,
		&quality,
		&size,
		&t.Prompt,
		&t.SourceRefs,
		&t.TokensCharged,
		&t.ProviderUnitsUsed,
		&status,
		&t.RetryCount,
		&t.ResultURL,
		&t.ResultKey,
		&t.DeliveredArtifactID,
		&t.ErrorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Kind = domain.TaskKind(kind)
	t.Provider = domain.ProviderID(provider)
	t.Quality = domain.Quality(quality)
	t.Size = domain.Size(size)
	t.Status = domain.TaskStatus(status)
	return &t, nil
}

var _ domain.TaskStore = (*TaskRepositoryPG)(nil)
