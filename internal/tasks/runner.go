package tasks

import (
	"context"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
)

// Runner executes one task's underlying work. The result must be
// JSON-serializable; it becomes the task row's result blob and the payload
// of the success Result envelope.
type Runner interface {
	Execute(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (map[string]any, error)
}

// DocumentStore is the narrow persistence port the orchestrator runner needs
// to load and save a Document around a Run call; internal/store provides the
// concrete implementation.
type DocumentStore interface {
	Load(ctx context.Context, id uuid.UUID) (*domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
}

// OrchestrationRunner is the Runner implementation that runs a full
// synthesis pipeline for domain.TaskSynthesizeDocument.
type OrchestrationRunner interface {
	Run(ctx context.Context, doc *domain.Document) error
}

// ChapterRunner is the Runner implementation that performs the embedding /
// chunking / dedup-scan post-ingestion jobs for a single Chapter (§4.J),
// keyed by domain.TaskEmbedChapter / domain.TaskDedupeChapter.
type ChapterRunner interface {
	EmbedChapter(ctx context.Context, chapterID uuid.UUID) (map[string]any, error)
	DedupeChapter(ctx context.Context, chapterID uuid.UUID) (map[string]any, error)
}

// CompositeRunner dispatches on domain.TaskType to the orchestrator for
// document synthesis or to the embedding pipeline for chapter jobs,
// collapsing both into the single Runner interface the consumer loop needs.
type CompositeRunner struct {
	Documents   DocumentStore
	Synthesizer OrchestrationRunner
	Chapters    ChapterRunner
}

func (r *CompositeRunner) Execute(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (map[string]any, error) {
	switch taskType {
	case domain.TaskSynthesizeDocument:
		doc, err := r.Documents.Load(ctx, entityID)
		if err != nil {
			return nil, err
		}
		if err := r.Synthesizer.Run(ctx, doc); err != nil {
			return nil, err
		}
		return map[string]any{"document_id": doc.ID.String(), "status": string(doc.Status)}, nil
	case domain.TaskEmbedChapter:
		return r.Chapters.EmbedChapter(ctx, entityID)
	case domain.TaskDedupeChapter:
		return r.Chapters.DedupeChapter(ctx, entityID)
	default:
		return nil, unknownTaskTypeError(taskType)
	}
}

type unknownTaskTypeError domain.TaskType

func (e unknownTaskTypeError) Error() string {
	return "tasks: unknown task type " + string(e)
}
