package embedpipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

type fakeStore struct {
	chapters map[uuid.UUID]*domain.Chapter
	similar  map[uuid.UUID][]domain.Chapter
}

func newFakeStore() *fakeStore {
	return &fakeStore{chapters: make(map[uuid.UUID]*domain.Chapter), similar: make(map[uuid.UUID][]domain.Chapter)}
}

func (s *fakeStore) LoadChapter(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	ch, ok := s.chapters[id]
	if !ok {
		return nil, assertNotFound{id}
	}
	cp := *ch
	return &cp, nil
}

func (s *fakeStore) SaveChapter(ctx context.Context, chapter *domain.Chapter) error {
	cp := *chapter
	s.chapters[chapter.ID] = &cp
	return nil
}

func (s *fakeStore) FindSimilar(ctx context.Context, embedding []float32, threshold float64, excludeID uuid.UUID) ([]domain.Chapter, error) {
	return s.similar[excludeID], nil
}

type assertNotFound struct{ id uuid.UUID }

func (e assertNotFound) Error() string { return "chapter not found: " + e.id.String() }

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text, modelID string) (llm.EmbeddingResult, error) {
	f.calls++
	return llm.EmbeddingResult{Vector: []float32{0.1, 0.2, 0.3}, Dim: 3, ModelID: modelID, CostUSD: 0.001}, nil
}

func TestEmbedChapterShortTextSkipsChunking(t *testing.T) {
	store := newFakeStore()
	chapterID := uuid.New()
	store.chapters[chapterID] = &domain.Chapter{ID: chapterID, Text: "A short chapter about spinal anatomy.", WordCount: 400}

	embedder := &fakeEmbedder{}
	pipeline := New(store, embedder)

	result, err := pipeline.EmbedChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, "success", result["status"])
	assert.Equal(t, false, result["chunks_queued"])
	assert.Equal(t, 1, embedder.calls)

	saved := store.chapters[chapterID]
	assert.NotEmpty(t, saved.Embedding)
	assert.Equal(t, "text-embedding-3-large", saved.EmbeddingModel)
}

func TestEmbedChapterSkipsIfAlreadyEmbedded(t *testing.T) {
	store := newFakeStore()
	chapterID := uuid.New()
	store.chapters[chapterID] = &domain.Chapter{ID: chapterID, Text: "text", Embedding: []float32{1, 2, 3}}

	pipeline := New(store, &fakeEmbedder{})
	result, err := pipeline.EmbedChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, "skipped", result["status"])
}

func TestEmbedChapterLongTextQueuesChunking(t *testing.T) {
	store := newFakeStore()
	chapterID := uuid.New()

	paragraph := strings.Repeat("The surgical approach requires careful attention to anatomical landmarks. ", 40)
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(paragraph)
		sb.WriteString("\n\n")
	}

	store.chapters[chapterID] = &domain.Chapter{ID: chapterID, Text: sb.String(), WordCount: 4500}

	embedder := &fakeEmbedder{}
	pipeline := New(store, embedder)

	result, err := pipeline.EmbedChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, true, result["chunks_queued"])

	saved := store.chapters[chapterID]
	assert.Greater(t, len(saved.Chunks), 0)
	for _, c := range saved.Chunks {
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestDedupeChapterUniqueWhenNoSimilarChapters(t *testing.T) {
	store := newFakeStore()
	chapterID := uuid.New()
	store.chapters[chapterID] = &domain.Chapter{ID: chapterID, Embedding: []float32{0.1, 0.2}}

	pipeline := New(store, &fakeEmbedder{})
	result, err := pipeline.DedupeChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, "unique", result["status"])
}

func TestDedupeChapterPicksHighestPreferenceScore(t *testing.T) {
	store := newFakeStore()
	winnerID := uuid.New()
	loserID := uuid.New()

	store.chapters[winnerID] = &domain.Chapter{
		ID: winnerID, Embedding: []float32{0.1, 0.2}, SourceType: "standalone", WordCount: 6000, QualityScore: 0.9, Year: 2023,
	}
	loser := domain.Chapter{ID: loserID, Embedding: []float32{0.1, 0.2}, SourceType: "paper", WordCount: 1000, QualityScore: 0.3, Year: 2005}
	store.chapters[loserID] = &loser
	store.similar[winnerID] = []domain.Chapter{loser}

	pipeline := New(store, &fakeEmbedder{})
	result, err := pipeline.DedupeChapter(context.Background(), winnerID)
	require.NoError(t, err)
	assert.Equal(t, "duplicates_found", result["status"])
	assert.Equal(t, winnerID.String(), result["preferred_chapter_id"])

	assert.False(t, store.chapters[winnerID].IsDuplicate)
	assert.True(t, store.chapters[loserID].IsDuplicate)
	assert.Equal(t, winnerID, store.chapters[loserID].DuplicateOfID)
	assert.Equal(t, store.chapters[winnerID].DuplicateGroupID, store.chapters[loserID].DuplicateGroupID)
}
