package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

type fakeIndex struct {
	hits []ChapterHit
	err  error
}

func (f *fakeIndex) SimilaritySearch(ctx context.Context, vector []float32, topK int) ([]ChapterHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeEmbedBackend struct{}

func (fakeEmbedBackend) ID() string           { return "openai" }
func (fakeEmbedBackend) SupportsSchema() bool { return true }
func (fakeEmbedBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (fakeEmbedBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	return llm.StructuredResult{}, nil
}
func (fakeEmbedBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{Vector: []float32{0.1, 0.2, 0.3}, ProviderID: "openai", ModelID: model}, nil
}
func (fakeEmbedBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

func TestInternalRetrieveHybridScoreOrdering(t *testing.T) {
	gateway := llm.NewGateway([]llm.Backend{fakeEmbedBackend{}})
	index := &fakeIndex{hits: []ChapterHit{
		{Source: domain.Source{Title: "low"}, CosineSimilarity: 0.2, LexicalOverlap: 0.1},
		{Source: domain.Source{Title: "high"}, CosineSimilarity: 0.9, LexicalOverlap: 0.8},
	}}

	sources, errs := InternalRetrieve(context.Background(), gateway, index, []string{"surgical technique"}, InternalOptions{})
	for _, e := range errs {
		require.NoError(t, e)
	}
	require.Len(t, sources, 2)
	assert.Equal(t, "high", sources[0].Title)
}

func TestInternalRetrievePartialFailureDoesNotAbortBatch(t *testing.T) {
	gateway := llm.NewGateway([]llm.Backend{fakeEmbedBackend{}})
	index := &fakeIndex{err: errors.New("index down")}

	sources, errs := InternalRetrieve(context.Background(), gateway, index, []string{"q1", "q2"}, InternalOptions{Parallelism: 1})
	require.Len(t, errs, 2)
	assert.Error(t, errs[0])
	assert.Error(t, errs[1])
	assert.Empty(t, sources, "a fully failing batch still returns (no panic, no abort) with an empty result")
}
