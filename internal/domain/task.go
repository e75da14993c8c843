package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the closed set of background-task states.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskType distinguishes a full orchestrator run from per-chapter
// post-ingestion jobs (§4.I).
type TaskType string

const (
	TaskSynthesizeDocument TaskType = "synthesize_document"
	TaskEmbedChapter       TaskType = "embed_chapter"
	TaskDedupeChapter      TaskType = "dedupe_chapter"
)

// Task is a background-work record.
type Task struct {
	ID           uuid.UUID
	Type         TaskType
	Status       TaskStatus
	Progress     int // percent, 0..100
	CurrentStep  string
	TotalSteps   int
	EntityID     uuid.UUID // Document.ID or Chapter.ID depending on Type
	Error        string
	ResultBlob   []byte

	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}
