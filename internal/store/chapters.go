package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/retrieval"
)

// WithVectors attaches a Qdrant-backed VectorIndex for chapter similarity
// search and chunk-free ANN writes; a Store with no VectorIndex still works
// for transactional CRUD (FindSimilar then always reports no matches).
func (s *Store) WithVectors(v VectorIndex) *Store {
	s.vectors = v
	return s
}

// SaveChapter inserts or updates a Chapter row and, when the chapter carries
// an embedding and a vector index is attached, upserts it into Qdrant too —
// satisfying embedpipeline.ChapterStore.
func (s *Store) SaveChapter(ctx context.Context, chapter *domain.Chapter) error {
	embedding, err := json.Marshal(chapter.Embedding)
	if err != nil {
		return fmt.Errorf("store.save_chapter: marshal embedding: %w", err)
	}
	chunks, err := json.Marshal(chapter.Chunks)
	if err != nil {
		return fmt.Errorf("store.save_chapter: marshal chunks: %w", err)
	}

	now := time.Now().UTC()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = now

	var duplicateOfID any
	if chapter.DuplicateOfID != uuid.Nil {
		duplicateOfID = chapter.DuplicateOfID
	}
	var embeddedAt any
	if !chapter.EmbeddedAt.IsZero() {
		embeddedAt = chapter.EmbeddedAt
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO chapters (
	id, book_id, title, page_start, page_end, text, word_count, embedding,
	embedding_model, embedded_at, chunks, is_duplicate, duplicate_group_id,
	duplicate_of_id, preference_score, detection_confidence, quality_score,
	year, source_type, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	page_start = EXCLUDED.page_start,
	page_end = EXCLUDED.page_end,
	text = EXCLUDED.text,
	word_count = EXCLUDED.word_count,
	embedding = EXCLUDED.embedding,
	embedding_model = EXCLUDED.embedding_model,
	embedded_at = EXCLUDED.embedded_at,
	chunks = EXCLUDED.chunks,
	is_duplicate = EXCLUDED.is_duplicate,
	duplicate_group_id = EXCLUDED.duplicate_group_id,
	duplicate_of_id = EXCLUDED.duplicate_of_id,
	preference_score = EXCLUDED.preference_score,
	detection_confidence = EXCLUDED.detection_confidence,
	quality_score = EXCLUDED.quality_score,
	year = EXCLUDED.year,
	source_type = EXCLUDED.source_type,
	updated_at = EXCLUDED.updated_at`,
		chapter.ID, chapter.BookID, chapter.Title, chapter.PageStart, chapter.PageEnd,
		chapter.Text, chapter.WordCount, embedding, chapter.EmbeddingModel, embeddedAt,
		chunks, chapter.IsDuplicate, chapter.DuplicateGroupID, duplicateOfID,
		chapter.PreferenceScore, chapter.DetectionConfidence, chapter.QualityScore,
		chapter.Year, chapter.SourceType, chapter.CreatedAt, chapter.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store.save_chapter: %w", err)
	}

	if s.vectors != nil && len(chapter.Embedding) > 0 {
		if err := s.vectors.Upsert(ctx, chapter.ID, chapter.Embedding); err != nil {
			return fmt.Errorf("store.save_chapter: vector upsert: %w", err)
		}
	}
	return nil
}

// LoadChapter fetches a Chapter by id, satisfying embedpipeline.ChapterStore.
func (s *Store) LoadChapter(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, book_id, title, page_start, page_end, text, word_count, embedding,
	embedding_model, embedded_at, chunks, is_duplicate, duplicate_group_id,
	duplicate_of_id, preference_score, detection_confidence, quality_score,
	year, source_type, created_at, updated_at
FROM chapters WHERE id = $1`, id)

	chapter, err := scanChapter(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errkind.New(errkind.UnknownEntity, "store.load_chapter", fmt.Errorf("chapter %s not found", id))
		}
		return nil, fmt.Errorf("store.load_chapter: %w", err)
	}
	return chapter, nil
}

// FindSimilar returns chapters (other than excludeID) whose cosine
// similarity to embedding exceeds threshold, satisfying
// embedpipeline.ChapterStore. Requires a VectorIndex; returns no matches
// without one rather than falling back to a full-table scan, matching the
// teacher's "memory fallback when backend unset" posture elsewhere in
// persistence/databases.
func (s *Store) FindSimilar(ctx context.Context, embedding []float32, threshold float64, excludeID uuid.UUID) ([]domain.Chapter, error) {
	if s.vectors == nil {
		return nil, nil
	}
	hits, err := s.vectors.Query(ctx, embedding, 25)
	if err != nil {
		return nil, fmt.Errorf("store.find_similar: %w", err)
	}

	var out []domain.Chapter
	for _, hit := range hits {
		if hit.ID == excludeID || hit.Score < threshold {
			continue
		}
		chapter, err := s.LoadChapter(ctx, hit.ID)
		if err != nil {
			if errkind.Is(err, errkind.UnknownEntity) {
				continue
			}
			return nil, fmt.Errorf("store.find_similar: load %s: %w", hit.ID, err)
		}
		out = append(out, *chapter)
	}
	return out, nil
}

func scanChapter(row pgx.Row) (*domain.Chapter, error) {
	var chapter domain.Chapter
	var embedding, chunks []byte
	var embeddedAt *time.Time
	var duplicateOfID *uuid.UUID

	err := row.Scan(
		&chapter.ID, &chapter.BookID, &chapter.Title, &chapter.PageStart, &chapter.PageEnd,
		&chapter.Text, &chapter.WordCount, &embedding, &chapter.EmbeddingModel, &embeddedAt,
		&chunks, &chapter.IsDuplicate, &chapter.DuplicateGroupID, &duplicateOfID,
		&chapter.PreferenceScore, &chapter.DetectionConfidence, &chapter.QualityScore,
		&chapter.Year, &chapter.SourceType, &chapter.CreatedAt, &chapter.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &chapter.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if len(chunks) > 0 {
		if err := json.Unmarshal(chunks, &chapter.Chunks); err != nil {
			return nil, fmt.Errorf("unmarshal chunks: %w", err)
		}
	}
	if embeddedAt != nil {
		chapter.EmbeddedAt = *embeddedAt
	}
	if duplicateOfID != nil {
		chapter.DuplicateOfID = *duplicateOfID
	}

	return &chapter, nil
}

// QdrantChapterIndex adapts Store's Qdrant-backed VectorIndex and Postgres
// chapter rows into retrieval.ChapterIndex, for stage 3's internal corpus
// search (§4.B). Defined here rather than in internal/retrieval to avoid
// that package importing internal/store (the dependency runs the other
// way: cmd wiring imports both and passes this adapter in).
type QdrantChapterIndex struct {
	store *Store
}

// NewQdrantChapterIndex builds a retrieval.ChapterIndex over store, which
// must already have a VectorIndex attached via WithVectors.
func NewQdrantChapterIndex(store *Store) *QdrantChapterIndex {
	return &QdrantChapterIndex{store: store}
}

// chapterToSource projects a Chapter onto the uniform Source record
// retrieval.ChapterHit carries, matching the teacher's view-projection
// idiom (scanProjectRow building a response shape out of storage columns).
func chapterToSource(chapter domain.Chapter) domain.Source {
	return domain.Source{
		ID:        chapter.ID.String(),
		Title:     chapter.Title,
		Year:      chapter.Year,
		Type:      domain.SourceInternal,
		Abstract:  chapter.Text,
		Embedding: chapter.Embedding,
	}
}

// SimilaritySearch returns the topK nearest Chapters to vector, satisfying
// retrieval.ChapterIndex. LexicalOverlap is intentionally left at zero: this
// port receives only an embedding, never the original query text, so no
// lexical score can be computed here (the teacher's FullTextSearch +
// VectorStore split never needs to answer this, since that split always has
// both text and vector available at the call site).
func (q *QdrantChapterIndex) SimilaritySearch(ctx context.Context, vector []float32, topK int) ([]retrieval.ChapterHit, error) {
	if q.store.vectors == nil {
		return nil, nil
	}
	hits, err := q.store.vectors.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("qdrant_chapter_index.similarity_search: %w", err)
	}

	out := make([]retrieval.ChapterHit, 0, len(hits))
	for _, hit := range hits {
		chapter, err := q.store.LoadChapter(ctx, hit.ID)
		if err != nil {
			if errkind.Is(err, errkind.UnknownEntity) {
				continue
			}
			return nil, fmt.Errorf("qdrant_chapter_index.similarity_search: load %s: %w", hit.ID, err)
		}
		out = append(out, retrieval.ChapterHit{
			Source:           chapterToSource(*chapter),
			CosineSimilarity: hit.Score,
		})
	}
	return out, nil
}
