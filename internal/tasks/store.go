package tasks

import (
	"context"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
)

// Store persists Task rows. Submission creates a row; workers advance its
// status as they process it; completion writes the result payload or error
// (§4.I).
type Store interface {
	Create(ctx context.Context, task *domain.Task) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, resultBlob []byte, errMsg string) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}
