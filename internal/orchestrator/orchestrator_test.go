package orchestrator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/config"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
	"chaptersynth/internal/progress"
	"chaptersynth/internal/retrieval"
)

type fakeBackend struct{}

func (fakeBackend) ID() string           { return "anthropic" }
func (fakeBackend) SupportsSchema() bool { return true }

func (fakeBackend) GenerateText(ctx context.Context, req llm.TextRequest) (llm.TextResult, error) {
	return llm.TextResult{Text: "Generated content discussing the topic [Smith, 2022].", ProviderID: "anthropic", ModelID: "test", CostUSD: 0.01}, nil
}

func (fakeBackend) GenerateStructured(ctx context.Context, req llm.TextRequest) (llm.StructuredResult, error) {
	data := map[string]any{
		"primary_concepts":        []any{"anatomy", "surgery"},
		"document_type":           "surgical_disease",
		"keywords":                []any{"spine", "fusion"},
		"complexity":              "high",
		"estimated_section_count": float64(3),

		"research_gaps":                 []any{map[string]any{"description": "limited long-term outcome data", "severity": "medium", "affected_sections": []any{}}},
		"key_references":                []any{map[string]any{"topic": "surgical technique", "key_findings": "approach comparisons"}},
		"source_category_distribution":  map[string]any{"clinical_trial": 0.4, "review": 0.6},
		"temporal_range_estimate":       "2015-2025",
		"overall_confidence":            0.8,

		"sections": []any{
			map[string]any{
				"title": "Introduction", "section_type": "introduction", "rationale": "orient the reader",
				"key_points": []any{"epidemiology", "scope"}, "estimated_word_count": float64(400),
				"source_allocation_hint": "epidemiology sources", "image_suggestions": []any{},
				"subsections": []any{
					map[string]any{"title": "Background", "section_type": "custom", "rationale": "context", "key_points": []any{"history"}, "estimated_word_count": float64(150)},
				},
			},
			map[string]any{
				"title": "Surgical Technique", "section_type": "surgical_technique", "rationale": "core technique",
				"key_points": []any{"approach", "fixation"}, "estimated_word_count": float64(500),
				"source_allocation_hint": "surgical technique sources",
			},
		},

		"score":     0.9,
		"rationale": "directly relevant to the topic",

		"claims": []any{
			map[string]any{"text": "fusion improves stability", "category": "outcomes", "verified": true, "confidence": 0.9, "severity_if_wrong": "high"},
		},

		"gaps": []any{},

		"contradictions":      []any{},
		"readability_issues":  []any{},
		"missing_transitions": []any{},
		"citation_issues":     []any{},
		"logical_flow_issues": []any{},
		"unclear_explanations": []any{},
		"overall_quality_assessment": map[string]any{
			"clarity_score": 0.8, "coherence_score": 0.8, "consistency_score": 0.8, "completeness_score": 0.8,
		},
		"overall_recommendation": "ready with minor revisions",
	}
	return llm.StructuredResult{Data: data, ProviderID: "anthropic", ModelID: "test", CostUSD: 0.02}, nil
}

func (fakeBackend) GenerateEmbedding(ctx context.Context, text, model string) (llm.EmbeddingResult, error) {
	return llm.EmbeddingResult{Vector: []float32{0.1, 0.2, 0.3}, ProviderID: "anthropic"}, nil
}

func (fakeBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (llm.ImageResult, error) {
	return llm.ImageResult{Text: "a diagram"}, nil
}

type fakeChapterIndex struct{}

func (fakeChapterIndex) SimilaritySearch(ctx context.Context, vector []float32, topK int) ([]retrieval.ChapterHit, error) {
	return []retrieval.ChapterHit{
		{Source: domain.Source{ID: "internal-1", Title: "Lumbar Fusion Outcomes", Year: 2023, Type: domain.SourceInternal}, CosineSimilarity: 0.9, LexicalOverlap: 0.5},
		{Source: domain.Source{ID: "internal-2", Title: "Spinal Anatomy Review", Year: 2021, Type: domain.SourceInternal}, CosineSimilarity: 0.8, LexicalOverlap: 0.4},
	}, nil
}

type fakeEvidenceDB struct{}

func (fakeEvidenceDB) Search(ctx context.Context, query string, m int) ([]string, error) {
	return []string{"pmid-1"}, nil
}

func (fakeEvidenceDB) Fetch(ctx context.Context, ids []string) ([]domain.Source, error) {
	return []domain.Source{{ID: "pmid-1", Title: "Randomized Trial of Fusion Technique", Year: 2022, ExternalID: "pmid-1", Type: domain.SourceExternalDB}}, nil
}

type fakeAISearcher struct{}

func (fakeAISearcher) Search(ctx context.Context, query string) ([]domain.Source, error) {
	return []domain.Source{{ID: "ai-1", Title: "AI-grounded surgical technique overview", Year: 2024}}, nil
}

type fakeImageIndex struct{}

func (fakeImageIndex) Search(ctx context.Context, keywords []string, limit int) ([]domain.Image, error) {
	return []domain.Image{
		{ID: "img-1", Caption: "Surgical approach diagram for spinal fusion", Description: "intraoperative photograph", Keywords: []string{"surgical", "approach", "fusion"}},
	}, nil
}

type recordingCheckpointer struct {
	stages []int
}

func (c *recordingCheckpointer) SaveCheckpoint(ctx context.Context, doc *domain.Document, stage int, blob []byte) error {
	c.stages = append(c.stages, stage)
	return nil
}

func newTestOrchestrator() (*Orchestrator, *recordingCheckpointer) {
	gateway := llm.NewGateway([]llm.Backend{fakeBackend{}})
	checkpointer := &recordingCheckpointer{}
	cfg := config.Defaults()
	deps := Dependencies{
		Gateway:      gateway,
		ChapterIndex: fakeChapterIndex{},
		Evidence:     fakeEvidenceDB{},
		AISearcher:   fakeAISearcher{},
		Images:       fakeImageIndex{},
		Checkpoints:  checkpointer,
		Progress:     progress.NewHub(),
	}
	return New(deps, cfg), checkpointer
}

func TestRunCompletesAllFourteenStages(t *testing.T) {
	o, checkpointer := newTestOrchestrator()
	doc := &domain.Document{ID: uuid.New(), Topic: "Lumbar spinal fusion"}

	err := o.Run(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, doc.Status)
	assert.True(t, doc.IsCurrentVersion)
	assert.Equal(t, "1.0", doc.Version)
	assert.Len(t, checkpointer.stages, totalStages)
	assert.NotEmpty(t, doc.Sections)
	assert.NotEmpty(t, doc.References)
	assert.Greater(t, doc.TotalWords, 0)
	assert.NotEmpty(t, doc.FactCheck)
	assert.NotEmpty(t, doc.GapAnalysis)

	var hasSubsection bool
	for _, s := range doc.Sections {
		if len(s.Children) > 0 {
			hasSubsection = true
		}
	}
	assert.True(t, hasSubsection, "the planned subsection should survive into generated sections")
}

func TestRunRejectsEmptyTopic(t *testing.T) {
	o, _ := newTestOrchestrator()
	doc := &domain.Document{ID: uuid.New(), Topic: "  "}

	err := o.Run(context.Background(), doc)
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, doc.Status)
	assert.Equal(t, 1, doc.LastStageAttempted)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	o, checkpointer := newTestOrchestrator()
	doc := &domain.Document{ID: uuid.New(), Topic: "Lumbar spinal fusion"}
	require.NoError(t, o.Run(context.Background(), doc))
	require.Len(t, checkpointer.stages, totalStages)

	// Simulate a crash after stage 5 by resetting to a document that only
	// has stages 1-5 committed, then resuming.
	resumed := &domain.Document{
		ID:           doc.ID,
		Topic:        doc.Topic,
		CurrentStage: 5,
		StageBlobs: map[int][]byte{
			1: doc.StageBlobs[1],
			2: doc.StageBlobs[2],
			3: doc.StageBlobs[3],
			4: doc.StageBlobs[4],
			5: doc.StageBlobs[5],
		},
	}
	checkpointer2 := &recordingCheckpointer{}
	o2, _ := newTestOrchestrator()
	o2.deps.Checkpoints = checkpointer2

	err := o2.Run(context.Background(), resumed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, resumed.Status)
	// Only stages 6-14 should have been (re)checkpointed.
	assert.Equal(t, []int{6, 7, 8, 9, 10, 11, 12, 13, 14}, checkpointer2.stages)
}
