package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/gapanalysis"
	"chaptersynth/internal/llm"
)

// stage2Output is stage 2's persisted blob (context_building schema),
// reusing gapanalysis.ResearchGap/KeyReference since the Gap Analyzer
// consumes exactly this shape in stage 6's optional auto-run.
type stage2Output struct {
	ResearchGaps                []gapanalysis.ResearchGap `json:"research_gaps"`
	KeyReferences               []gapanalysis.KeyReference `json:"key_references"`
	SourceCategoryDistribution  map[string]float64        `json:"source_category_distribution"`
	TemporalRangeEstimate       string                     `json:"temporal_range_estimate"`
	OverallConfidence           float64                    `json:"overall_confidence"`
}

func (o *Orchestrator) runStage2(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	prompt := fmt.Sprintf(
		"Plan research context for a chapter on %q (type: %s, concepts: %s).\n\n"+
			"Identify research gaps (each with a severity of high/medium/low), key "+
			"reference categories this chapter should cite, the expected "+
			"distribution of source categories (e.g. clinical_trial, review, "+
			"textbook), an estimate of the relevant publication date range, and "+
			"your overall confidence that sufficient evidence exists.",
		doc.Topic, st.analysis.DocumentType, strings.Join(st.analysis.PrimaryConcepts, ", "),
	)

	result, err := o.deps.Gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:                prompt,
		SystemPrompt:          "You are a medical research librarian scoping a literature review.",
		CacheableSystemPrompt: true,
		MaxTokens:             1500,
		Temperature:           0.3,
		Schema:                contextBuildingSchema,
		SchemaName:            "context_building",
	}, llm.TaskMetadataExtraction)
	if err != nil {
		return nil, fmt.Errorf("stage_2.context_building: %w", err)
	}

	out := stage2Output{
		SourceCategoryDistribution: map[string]float64{},
	}
	out.ResearchGaps = parseResearchGaps(result.Data["research_gaps"])
	out.KeyReferences = parseKeyReferences(result.Data["key_references"])
	if dist, ok := result.Data["source_category_distribution"].(map[string]any); ok {
		for k, v := range dist {
			out.SourceCategoryDistribution[k] = floatFromAny(v)
		}
	}
	if s, ok := result.Data["temporal_range_estimate"].(string); ok {
		out.TemporalRangeEstimate = s
	}
	out.OverallConfidence = floatFromAny(result.Data["overall_confidence"])

	st.context = out
	return json.Marshal(out)
}

func parseResearchGaps(v any) []gapanalysis.ResearchGap {
	raw, _ := v.([]any)
	out := make([]gapanalysis.ResearchGap, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		desc, _ := m["description"].(string)
		severity, _ := m["severity"].(string)
		var sections []int
		for _, s := range stringOrNumberSlice(m["affected_sections"]) {
			sections = append(sections, int(floatFromAny(s)))
		}
		out = append(out, gapanalysis.ResearchGap{Description: desc, Severity: severity, AffectedSections: sections})
	}
	return out
}

func parseKeyReferences(v any) []gapanalysis.KeyReference {
	raw, _ := v.([]any)
	out := make([]gapanalysis.KeyReference, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		topic, _ := m["topic"].(string)
		findings, _ := m["key_findings"].(string)
		out = append(out, gapanalysis.KeyReference{Topic: topic, KeyFindings: findings})
	}
	return out
}

func stringOrNumberSlice(v any) []any {
	raw, _ := v.([]any)
	return raw
}

func floatFromAny(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
