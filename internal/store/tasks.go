package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// Create inserts a new Task row, satisfying tasks.Store.
func (s *Store) Create(ctx context.Context, task *domain.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO tasks (id, type, status, progress, current_step, total_steps, entity_id, error, result_blob, started_at, completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.Type, task.Status, task.Progress, task.CurrentStep, task.TotalSteps,
		task.EntityID, task.Error, task.ResultBlob, task.StartedAt, task.CompletedAt, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.create_task: %w", err)
	}
	return nil
}

// UpdateStatus transitions a Task's status and records its terminal payload,
// satisfying tasks.Store.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, resultBlob []byte, errMsg string) error {
	now := time.Now().UTC()

	var startedAt, completedAt any
	switch status {
	case domain.TaskProcessing:
		startedAt = now
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		completedAt = now
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE tasks SET
	status = $1,
	result_blob = COALESCE($2, result_blob),
	error = $3,
	started_at = COALESCE($4, started_at),
	completed_at = COALESCE($5, completed_at)
WHERE id = $6`,
		status, nullableBytes(resultBlob), errMsg, startedAt, completedAt, id)
	if err != nil {
		return fmt.Errorf("store.update_task_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errkind.New(errkind.UnknownEntity, "store.update_task_status", fmt.Errorf("task %s not found", id))
	}
	return nil
}

// Get fetches a Task by id, satisfying tasks.Store.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, type, status, progress, current_step, total_steps, entity_id, error, result_blob, started_at, completed_at, created_at
FROM tasks WHERE id = $1`, id)

	var task domain.Task
	err := row.Scan(&task.ID, &task.Type, &task.Status, &task.Progress, &task.CurrentStep,
		&task.TotalSteps, &task.EntityID, &task.Error, &task.ResultBlob, &task.StartedAt,
		&task.CompletedAt, &task.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errkind.New(errkind.UnknownEntity, "store.get_task", fmt.Errorf("task %s not found", id))
		}
		return nil, fmt.Errorf("store.get_task: %w", err)
	}
	return &task, nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
