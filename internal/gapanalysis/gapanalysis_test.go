package gapanalysis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

type fakeCriticalBackend struct{}

func (fakeCriticalBackend) ID() string           { return "anthropic" }
func (fakeCriticalBackend) SupportsSchema() bool { return false }
func (fakeCriticalBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{}, nil
}
func (fakeCriticalBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	return llm.StructuredResult{
		Data: map[string]any{
			"gaps": []any{
				map[string]any{"gap": "No complications coverage", "severity": "high", "missing_topic": "complications", "should_be_in": "complications"},
			},
		},
	}, nil
}
func (fakeCriticalBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{}, nil
}
func (fakeCriticalBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{}, nil
}

func sampleDocument() *domain.Document {
	return &domain.Document{
		ID:           uuid.New(),
		Title:        "Rotator Cuff Tears",
		DocumentType: domain.DocumentSurgicalDisease,
		Sections: []domain.Section{
			{Ordinal: 1, Title: "Introduction", Content: "This chapter covers rotator cuff anatomy and treatment options in detail with significant content.", WordCount: 400},
			{Ordinal: 2, Title: "Outcomes", Content: "Short.", WordCount: 20},
		},
	}
}

func TestAnalyzeContentCompletenessFlagsUnaddressedGap(t *testing.T) {
	doc := sampleDocument()
	stage2 := Context{
		ResearchGaps: []ResearchGap{
			{Description: "long term outcomes after revision surgery", Severity: "medium"},
		},
	}
	issues := analyzeContentCompleteness(doc, stage2)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
	assert.Equal(t, "missing_research_gap", issues[0].Type)
}

func TestAnalyzeSourceCoverageFlagsUncitedHighRelevanceSource(t *testing.T) {
	doc := sampleDocument()
	sources := []domain.Source{
		{Title: "Completely Unrelated High Impact Paper", ModelScore: 0.95},
	}
	issues := analyzeSourceCoverage(doc, sources, nil)
	var found bool
	for _, i := range issues {
		if i.Type == "unused_high_value_source" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeSourceCoverageLowExternalRatio(t *testing.T) {
	doc := sampleDocument()
	internal := []domain.Source{{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}, {Title: "e"}}
	issues := analyzeSourceCoverage(doc, internal, nil)
	var found bool
	for _, i := range issues {
		if i.Type == "low_external_sources" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalyzeSectionBalanceFlagsUnderdevelopedSection(t *testing.T) {
	doc := sampleDocument()
	issues := analyzeSectionBalance(doc)
	var found bool
	for _, i := range issues {
		if i.Type == "underdeveloped_section" {
			found = true
			assert.Equal(t, 2, i.SectionNumber)
		}
	}
	assert.True(t, found)
}

func TestAnalyzeTemporalCoverageNoExternalSources(t *testing.T) {
	issues := analyzeTemporalCoverage(nil)
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
}

func TestAnalyzeTemporalCoverageOutdatedDominant(t *testing.T) {
	sources := []domain.Source{
		{Year: 1995}, {Year: 1996}, {Year: 1997},
	}
	issues := analyzeTemporalCoverage(sources)
	var found bool
	for _, i := range issues {
		if i.Type == "outdated_sources_dominant" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompletenessScoreSubtractsSeverityPenalties(t *testing.T) {
	issues := []Issue{
		{Severity: SeverityCritical},
		{Severity: SeverityLow},
	}
	score := completenessScore(issues)
	assert.InDelta(t, 0.83, score, 0.01)
}

func TestAnalyzeIntegratesAllDimensions(t *testing.T) {
	gateway := llm.NewGateway([]llm.Backend{fakeCriticalBackend{}})
	doc := sampleDocument()
	report, err := Analyze(context.Background(), gateway, doc, nil, nil, Context{})
	require.NoError(t, err)
	assert.NotEmpty(t, report.Issues)
	assert.True(t, report.CompletenessScore <= 1.0)
}
