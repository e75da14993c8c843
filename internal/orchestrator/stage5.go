package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

// plannedSection is one node of stage 5's outline tree. Templates are
// guidance, not enforcement (§4.H "Templates are guidance, not enforced") —
// Type defaults to SectionCustom when the model names something outside
// the closed set.
type plannedSection struct {
	Title                 string             `json:"title"`
	Type                  domain.SectionType `json:"section_type"`
	Rationale             string             `json:"rationale"`
	KeyPoints             []string           `json:"key_points"`
	EstimatedWordCount    int                `json:"estimated_word_count"`
	SourceAllocationHint  string             `json:"source_allocation_hint"`
	ImageSuggestions      []string           `json:"image_suggestions"`
	Subsections           []plannedSection   `json:"subsections"`
}

type stage5Output struct {
	Sections []plannedSection `json:"sections"`
}

func (o *Orchestrator) runStage5(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	prompt := fmt.Sprintf(
		"Plan the section outline for a %s chapter on %q, targeting roughly "+
			"%d sections. For each section give: title, section_type, a brief "+
			"rationale, key_points, an estimated_word_count, a source_allocation_hint "+
			"describing what kind of evidence it needs, optional image_suggestions, "+
			"and optional nested subsections (at most 3 levels deep). "+
			"Known research gaps to address: %s.",
		st.analysis.DocumentType, doc.Topic, st.analysis.EstimatedSectionCount,
		researchGapSummary(st.context),
	)

	result, err := o.deps.Gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:                prompt,
		SystemPrompt:          "You are a medical education curriculum planner.",
		CacheableSystemPrompt: true,
		MaxTokens:             2500,
		Temperature:           0.4,
		Schema:                planningSchema,
		SchemaName:            "planning",
	}, llm.TaskContentDrafting)
	if err != nil {
		return nil, fmt.Errorf("stage_5.planning: %w", err)
	}

	raw, _ := result.Data["sections"].([]any)
	out := stage5Output{Sections: parsePlannedSections(raw, 0)}
	st.plan = out
	return json.Marshal(out)
}

func parsePlannedSections(raw []any, depth int) []plannedSection {
	out := make([]plannedSection, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := plannedSection{
			Type: domain.SectionCustom,
		}
		s.Title, _ = m["title"].(string)
		if t, ok := m["section_type"].(string); ok && t != "" {
			s.Type = domain.SectionType(t)
		}
		s.Rationale, _ = m["rationale"].(string)
		s.KeyPoints = stringSlice(m["key_points"])
		s.EstimatedWordCount = intFromAny(m["estimated_word_count"])
		s.SourceAllocationHint, _ = m["source_allocation_hint"].(string)
		s.ImageSuggestions = stringSlice(m["image_suggestions"])

		if depth+1 < domain.MaxSectionDepth {
			if sub, ok := m["subsections"].([]any); ok {
				s.Subsections = parsePlannedSections(sub, depth+1)
			}
		}
		out = append(out, s)
	}
	return out
}

func researchGapSummary(c stage2Output) string {
	if len(c.ResearchGaps) == 0 {
		return "none identified"
	}
	parts := make([]string, 0, len(c.ResearchGaps))
	for _, g := range c.ResearchGaps {
		parts = append(parts, g.Description)
	}
	return strings.Join(parts, "; ")
}
