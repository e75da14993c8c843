package relevance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

type fakeScoringBackend struct {
	scores map[string]float64
}

func (f fakeScoringBackend) ID() string           { return "anthropic" }
func (f fakeScoringBackend) SupportsSchema() bool { return false }
func (f fakeScoringBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (f fakeScoringBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	for title, score := range f.scores {
		if containsTitle(req.Prompt, title) {
			return llm.StructuredResult{
				Data:       map[string]any{"score": score, "rationale": "matched"},
				ProviderID: "anthropic",
				ModelID:    "claude",
			}, nil
		}
	}
	return llm.StructuredResult{Data: map[string]any{"score": 0.0, "rationale": "no match"}}, nil
}
func (f fakeScoringBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{}, nil
}
func (f fakeScoringBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

func containsTitle(prompt, title string) bool {
	return len(title) > 0 && len(prompt) >= len(title) && indexOf(prompt, title) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestFilterKeepsAboveThresholdPreservingOrder(t *testing.T) {
	backend := fakeScoringBackend{scores: map[string]float64{
		"High relevance paper": 0.95,
		"Low relevance paper":  0.2,
		"Borderline paper":     0.75,
	}}
	gateway := llm.NewGateway([]llm.Backend{backend})

	candidates := []domain.Source{
		{Title: "Low relevance paper"},
		{Title: "High relevance paper"},
		{Title: "Borderline paper"},
	}
	kept, scores, err := Filter(context.Background(), gateway, "surgical technique", candidates, Options{})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	require.Len(t, kept, 2)
	assert.Equal(t, "High relevance paper", kept[0].Title)
	assert.Equal(t, "Borderline paper", kept[1].Title)
}

func TestFilterCustomThreshold(t *testing.T) {
	backend := fakeScoringBackend{scores: map[string]float64{"Paper": 0.5}}
	gateway := llm.NewGateway([]llm.Backend{backend})

	kept, _, err := Filter(context.Background(), gateway, "q", []domain.Source{{Title: "Paper"}}, Options{Threshold: 0.4})
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	kept, _, err = Filter(context.Background(), gateway, "q", []domain.Source{{Title: "Paper"}}, Options{Threshold: 0.6})
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.5, clamp01(0.5))
}
