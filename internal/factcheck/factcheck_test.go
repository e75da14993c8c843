package factcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

type fakeFactCheckBackend struct {
	claims []any
}

func (f fakeFactCheckBackend) ID() string           { return "anthropic" }
func (f fakeFactCheckBackend) SupportsSchema() bool { return false }
func (f fakeFactCheckBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (f fakeFactCheckBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	return llm.StructuredResult{Data: map[string]any{"claims": f.claims}, CostUSD: 0.01}, nil
}
func (f fakeFactCheckBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{}, nil
}
func (f fakeFactCheckBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

func TestCheckSectionParsesClaims(t *testing.T) {
	backend := fakeFactCheckBackend{claims: []any{
		map[string]any{"text": "The rotator cuff has four muscles", "category": "anatomy", "verified": true, "confidence": 0.95, "severity_if_wrong": "high"},
	}}
	gateway := llm.NewGateway([]llm.Backend{backend})

	result, err := CheckSection(context.Background(), gateway, "Rotator Cuff", domain.Section{Title: "Anatomy", Content: "text"}, nil)
	require.NoError(t, err)
	require.Len(t, result.Claims, 1)
	assert.True(t, result.Claims[0].Verified)
	assert.Equal(t, "anatomy", result.Claims[0].Category)
}

func TestAggregatePassesAtHighAccuracy(t *testing.T) {
	claims := []Claim{
		{Verified: true}, {Verified: true}, {Verified: true}, {Verified: true}, {Verified: false, SeverityIfWrong: SeverityLow},
	}
	report := aggregate(nil, claims)
	assert.InDelta(t, 0.8, report.OverallAccuracy, 0.01)
	assert.True(t, report.Pass, "0.80 accuracy with no critical unverified claims should pass")
}

func TestAggregateFailsOnCriticalUnverified(t *testing.T) {
	claims := []Claim{
		{Verified: true}, {Verified: true}, {Verified: true}, {Verified: true},
		{Verified: false, SeverityIfWrong: SeverityCritical},
	}
	report := aggregate(nil, claims)
	assert.InDelta(t, 0.8, report.OverallAccuracy, 0.01)
	assert.False(t, report.Pass)
}

func TestAggregateFailsWhenTooManyCriticalIssues(t *testing.T) {
	claims := make([]Claim, 0)
	for i := 0; i < 30; i++ {
		claims = append(claims, Claim{Verified: true})
	}
	claims = append(claims,
		Claim{Verified: false, SeverityIfWrong: SeverityCritical},
		Claim{Verified: false, SeverityIfWrong: SeverityCritical},
		Claim{Verified: false, SeverityIfWrong: SeverityCritical},
	)
	report := aggregate(nil, claims)
	assert.GreaterOrEqual(t, report.OverallAccuracy, 0.90)
	assert.False(t, report.Pass, "more than 2 critical issues should fail regardless of accuracy")
}

func TestCheckDocumentSkipsEmptySections(t *testing.T) {
	backend := fakeFactCheckBackend{claims: []any{
		map[string]any{"text": "claim", "verified": true, "confidence": 0.9, "severity_if_wrong": "low"},
	}}
	gateway := llm.NewGateway([]llm.Backend{backend})

	doc := &domain.Document{
		Title: "Doc",
		Sections: []domain.Section{
			{Title: "Has content", Content: "some content"},
			{Title: "Empty", Content: ""},
		},
	}
	report, err := CheckDocument(context.Background(), gateway, doc, nil)
	require.NoError(t, err)
	require.Len(t, report.SectionResults, 1)
	assert.Equal(t, "Has content", report.SectionResults[0].SectionTitle)
}
