package orchestrator

import (
	"context"

	"chaptersynth/internal/domain"
)

// Checkpointer persists one stage's output blob and the document's advanced
// stage pointer atomically enough that a crash mid-stage resumes at the last
// committed stage (§4.H "crash mid-stage resumes from the last persisted
// checkpoint"). internal/store provides the Postgres-backed implementation;
// orchestrator only depends on this narrow port.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, doc *domain.Document, stage int, blob []byte) error
}

// ImageIndex looks up candidate figures by keyword, grounded on the
// original's stage_3_internal_research.images: images ride along with the
// internal corpus retrieval rather than being indexed independently.
type ImageIndex interface {
	Search(ctx context.Context, keywords []string, limit int) ([]domain.Image, error)
}
