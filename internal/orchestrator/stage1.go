package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/llm"
)

const minTopicLength = 3

// stage1Output is stage 1's persisted blob, grounded on the original's
// stage_1_input JSONB (chapter_analysis schema).
type stage1Output struct {
	PrimaryConcepts       []string            `json:"primary_concepts"`
	DocumentType          domain.DocumentType `json:"document_type"`
	Keywords              []string            `json:"keywords"`
	Complexity            string              `json:"complexity"`
	EstimatedSectionCount int                 `json:"estimated_section_count"`
}

func (o *Orchestrator) runStage1(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	topic := strings.TrimSpace(doc.Topic)
	if len(topic) < minTopicLength {
		return nil, errkind.New(errkind.InvalidInput, "stage_1.validate_topic", errors.New("topic is empty or too short"))
	}

	prompt := fmt.Sprintf(
		"Analyze this medical topic for chapter generation: %q.\n\n"+
			"Identify the primary medical concepts, classify the document type "+
			"(surgical_disease, pure_anatomy, or surgical_technique), extract "+
			"relevant keywords, assess topic complexity (low/medium/high), and "+
			"estimate how many sections a thorough chapter on this topic would need.",
		topic,
	)

	result, err := o.deps.Gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:                prompt,
		SystemPrompt:          "You are a medical education content strategist classifying chapter topics.",
		CacheableSystemPrompt: true,
		MaxTokens:             1000,
		Temperature:           0.3,
		Schema:                chapterAnalysisSchema,
		SchemaName:            "chapter_analysis",
	}, llm.TaskMetadataExtraction)
	if err != nil {
		return nil, fmt.Errorf("stage_1.analyze_topic: %w", err)
	}

	out := stage1Output{
		DocumentType: domain.DocumentSurgicalDisease,
		Complexity:   "medium",
	}
	out.PrimaryConcepts = stringSlice(result.Data["primary_concepts"])
	out.Keywords = stringSlice(result.Data["keywords"])
	if dt, ok := result.Data["document_type"].(string); ok && dt != "" {
		out.DocumentType = domain.DocumentType(dt)
	}
	if c, ok := result.Data["complexity"].(string); ok && c != "" {
		out.Complexity = c
	}
	out.EstimatedSectionCount = intFromAny(result.Data["estimated_section_count"])

	doc.DocumentType = out.DocumentType
	if doc.Title == "" {
		doc.Title = topic
	}

	st.analysis = out
	return json.Marshal(out)
}

func stringSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
