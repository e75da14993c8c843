package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const reviewPreviewChars = 200

type stage12Output struct {
	Skipped bool           `json:"skipped,omitempty"`
	Review  map[string]any `json:"review,omitempty"`
}

// runStage12 runs a comprehensive structured review over the finished
// chapter and stores the model's verbatim response for downstream
// consumers (§4.H stage 12), grounded on the original's
// _stage_12_review_refinement / CHAPTER_REVIEW_SCHEMA.
func (o *Orchestrator) runStage12(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return json.Marshal(stage12Output{Skipped: true})
	}

	result, err := o.deps.Gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:       buildReviewPrompt(doc),
		SystemPrompt: "You are a meticulous medical education reviewer.",
		MaxTokens:    4000,
		Temperature:  0.4,
		Schema:       reviewSchema,
		SchemaName:   "chapter_review",
	}, llm.TaskMetadataExtraction)
	if err != nil {
		return nil, fmt.Errorf("stage_12.review: %w", err)
	}

	return json.Marshal(stage12Output{Review: result.Data})
}

func buildReviewPrompt(doc *domain.Document) string {
	var summaries []string
	domain.WalkFlatten(doc.Sections, func(s *domain.Section, _ int) {
		preview := s.Content
		if len(preview) > reviewPreviewChars {
			preview = preview[:reviewPreviewChars] + "..."
		}
		summaries = append(summaries, fmt.Sprintf("**%s** (%d words)\n%s", s.Title, s.WordCount, preview))
	})

	return fmt.Sprintf(
		"Review this chapter titled %q for quality and actionable feedback.\n\n"+
			"Total sections: %d. Total words: %d.\n\n"+
			"Section overview:\n%s\n\n"+
			"Identify contradictions between sections, readability issues (jargon, "+
			"unclear explanations), missing transitions, citation issues, logical-flow "+
			"issues, unclear explanations, and score clarity/coherence/consistency/"+
			"completeness, with an overall recommendation.",
		doc.Title, len(doc.Sections), doc.TotalWords, strings.Join(summaries, "\n\n"),
	)
}
