// Package embedpipeline implements the Chapter Embedding Pipeline (§4.J):
// on successful ingestion of a Chapter it truncates and embeds the chapter
// text, chunk-embeds long chapters with heading-aware boundaries, and scans
// for near-duplicate chapters, assigning a shared duplicate group and a
// preference-ranked winner.
package embedpipeline

import (
	"context"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

// ChapterStore is the narrow persistence port this pipeline needs;
// internal/store provides the concrete implementation.
type ChapterStore interface {
	LoadChapter(ctx context.Context, id uuid.UUID) (*domain.Chapter, error)
	SaveChapter(ctx context.Context, chapter *domain.Chapter) error

	// FindSimilar returns every other chapter whose stored embedding has
	// cosine similarity greater than threshold against embedding, excluding
	// excludeID.
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, excludeID uuid.UUID) ([]domain.Chapter, error)
}

// Embedder generates a text embedding. It is satisfied by *llm.Gateway.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text, modelID string) (llm.EmbeddingResult, error)
}
