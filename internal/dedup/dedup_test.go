package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/config"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/llm"
)

func TestDeduplicateExactDropsIdenticalDOI(t *testing.T) {
	sources := []domain.Source{
		{Title: "Rotator Cuff Repair", ExternalID: "10.1234/abc", Year: 2020},
		{Title: "rotator cuff repair", ExternalID: "10.1234/abc", Year: 2021},
		{Title: "Unrelated Study", ExternalID: "10.9999/xyz", Year: 2019},
	}
	out, err := Deduplicate(context.Background(), nil, sources, config.DedupExact, 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDeduplicateFuzzyMergesSimilarTitles(t *testing.T) {
	sources := []domain.Source{
		{Title: "Outcomes of Anterior Cruciate Ligament Reconstruction", Authors: []string{"Smith J", "Doe A"}, Year: 2021, Abstract: "short"},
		{Title: "Outcomes of Anterior Cruciate Ligament Reconstructions", Authors: []string{"Smith J", "Doe A"}, Year: 2021, Abstract: "a much longer abstract with more detail"},
		{Title: "Completely Different Topic About Diabetes Management", Authors: []string{"Lee K"}, Year: 2015},
	}
	out, err := Deduplicate(context.Background(), nil, sources, config.DedupFuzzy, 0.85)
	require.NoError(t, err)
	require.Len(t, out, 2)

	var merged domain.Source
	for _, s := range out {
		if s.Title == sources[0].Title {
			merged = s
		}
	}
	assert.Equal(t, 1, merged.DuplicateCount)
	assert.Equal(t, "a much longer abstract with more detail", merged.Abstract)
	assert.Contains(t, merged.AlternativeTitles, sources[1].Title)
}

func TestDeduplicateFuzzyBelowThresholdKeepsBoth(t *testing.T) {
	sources := []domain.Source{
		{Title: "Knee Osteoarthritis Treatment Approaches", Year: 2020},
		{Title: "Hip Fracture Surgical Management", Year: 2020},
	}
	out, err := Deduplicate(context.Background(), nil, sources, config.DedupFuzzy, 0.85)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

type fakeEmbedBackend struct{ vectors map[string][]float32 }

func (f fakeEmbedBackend) ID() string           { return "openai" }
func (f fakeEmbedBackend) SupportsSchema() bool { return true }
func (f fakeEmbedBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (f fakeEmbedBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	return llm.StructuredResult{}, nil
}
func (f fakeEmbedBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{Vector: f.vectors[text], ProviderID: "openai", ModelID: model}, nil
}
func (f fakeEmbedBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

func TestDeduplicateSemanticMergesByCosineSimilarity(t *testing.T) {
	a := domain.Source{Title: "Study A", Abstract: "about knees", Authors: []string{"X"}, Year: 2020}
	b := domain.Source{Title: "Study B", Abstract: "about knees too", Authors: []string{"X"}, Year: 2020}
	c := domain.Source{Title: "Study C", Abstract: "about hearts", Authors: []string{"Y"}, Year: 2020}

	vectors := map[string][]float32{
		sourceEmbeddingText(a): {1, 0, 0},
		sourceEmbeddingText(b): {0.99, 0.01, 0},
		sourceEmbeddingText(c): {0, 1, 0},
	}
	gateway := llm.NewGateway([]llm.Backend{fakeEmbedBackend{vectors: vectors}})

	out, err := Deduplicate(context.Background(), gateway, []domain.Source{a, b, c}, config.DedupSemantic, 0.9)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

type failingEmbedBackend struct{}

func (failingEmbedBackend) ID() string           { return "openai" }
func (failingEmbedBackend) SupportsSchema() bool { return true }
func (failingEmbedBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (failingEmbedBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	return llm.StructuredResult{}, nil
}
func (failingEmbedBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	// Tagged InvalidInput so the gateway's dispatch fails fast instead of
	// burning through retry backoff; the fallback behavior under test is
	// dedup's, not the gateway's.
	return llm.EmbeddingResult{}, errkind.New(errkind.InvalidInput, "generate_embedding", errEmbedUnavailable)
}
func (failingEmbedBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

var errEmbedUnavailable = &embedFailure{}

type embedFailure struct{}

func (*embedFailure) Error() string { return "embedding backend unavailable" }

func TestDeduplicateSemanticFallsBackToFuzzyOnEmbeddingFailure(t *testing.T) {
	gateway := llm.NewGateway([]llm.Backend{failingEmbedBackend{}})
	sources := []domain.Source{
		{Title: "Outcomes of Anterior Cruciate Ligament Reconstruction", Authors: []string{"Smith J", "Doe A"}, Year: 2021},
		{Title: "Outcomes of Anterior Cruciate Ligament Reconstructions", Authors: []string{"Smith J", "Doe A"}, Year: 2021},
	}
	out, err := Deduplicate(context.Background(), gateway, sources, config.DedupSemantic, 0.85)
	require.NoError(t, err)
	assert.Len(t, out, 1, "embedding failure should fall back to fuzzy dedup rather than erroring")
}

func TestComputeStats(t *testing.T) {
	sources := []domain.Source{
		{IsDuplicate: false, DedupStrategy: "fuzzy"},
		{IsDuplicate: false, DedupStrategy: "fuzzy"},
		{IsDuplicate: true},
	}
	stats := ComputeStats(sources)
	assert.Equal(t, 3, stats.TotalSources)
	assert.Equal(t, 2, stats.UniqueSources)
	assert.Equal(t, 1, stats.DuplicateSources)
	assert.InDelta(t, 33.33, stats.DeduplicationRate, 0.1)
}
