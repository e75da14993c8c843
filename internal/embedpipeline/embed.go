package embedpipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// EmbedChapter implements §4.J steps (i)-(iv): truncate, embed, persist,
// and chunk-embed if the chapter crosses the word-count boundary.
func (p *Pipeline) EmbedChapter(ctx context.Context, chapterID uuid.UUID) (map[string]any, error) {
	chapter, err := p.Store.LoadChapter(ctx, chapterID)
	if err != nil {
		return nil, errkind.New(errkind.UnknownEntity, "embedpipeline.embed_chapter", err)
	}

	if len(chapter.Embedding) > 0 {
		return map[string]any{"status": "skipped", "reason": "embedding_exists", "chapter_id": chapterID.String()}, nil
	}
	if chapter.Text == "" {
		return nil, errkind.New(errkind.InvalidInput, "embedpipeline.embed_chapter", fmt.Errorf("chapter %s has no extracted text", chapterID))
	}

	text, truncated := truncateForEmbedding(chapter.Text)
	result, err := p.Embedder.GenerateEmbedding(ctx, text, embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedpipeline.embed_chapter: %w", err)
	}

	chapter.Embedding = result.Vector
	chapter.EmbeddingModel = result.ModelID
	chapter.EmbeddedAt = time.Now()

	if err := p.Store.SaveChapter(ctx, chapter); err != nil {
		return nil, fmt.Errorf("embedpipeline.embed_chapter: save: %w", err)
	}

	out := map[string]any{
		"status":               "success",
		"chapter_id":           chapterID.String(),
		"embedding_dimensions": result.Dim,
		"cost_usd":             result.CostUSD,
		"truncated":            truncated,
		"chunks_queued":        chapter.NeedsChunking(),
	}

	if chapter.NeedsChunking() {
		chunksCreated, chunkCost, err := p.embedChunks(ctx, chapter)
		if err != nil {
			return nil, fmt.Errorf("embedpipeline.embed_chapter: chunking: %w", err)
		}
		out["chunks_created"] = chunksCreated
		out["chunk_cost_usd"] = chunkCost
	}

	return out, nil
}

// embedChunks implements §4.J step (iv): split into boundary-aware chunks
// and embed each one.
func (p *Pipeline) embedChunks(ctx context.Context, chapter *domain.Chapter) (int, float64, error) {
	if len(chapter.Chunks) > 0 {
		return len(chapter.Chunks), 0, nil
	}

	pieces := IntelligentChunk(chapter.Text)
	chunks := make([]domain.Chunk, 0, len(pieces))
	var totalCost float64

	for _, piece := range pieces {
		result, err := p.Embedder.GenerateEmbedding(ctx, piece.Text, embeddingModel)
		if err != nil {
			return len(chunks), totalCost, fmt.Errorf("chunk %d: %w", piece.Index, err)
		}
		chunks = append(chunks, domain.Chunk{
			Index:            piece.Index,
			Text:             piece.Text,
			StartOffset:      piece.StartOffset,
			EndOffset:        piece.EndOffset,
			PrecedingHeading: piece.PrecedingHeading,
			Embedding:        result.Vector,
		})
		totalCost += result.CostUSD
	}

	chapter.Chunks = chunks
	if err := p.Store.SaveChapter(ctx, chapter); err != nil {
		return len(chunks), totalCost, fmt.Errorf("save chunks: %w", err)
	}
	return len(chunks), totalCost, nil
}
