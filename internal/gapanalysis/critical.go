package gapanalysis

import (
	"context"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const maxCriticalGaps = 5

var criticalInfoSchema = map[string]any{
	"type":     "object",
	"required": []any{"gaps"},
	"properties": map[string]any{
		"gaps": map[string]any{"type": "array"},
	},
}

// analyzeCriticalInformation asks the Provider Gateway for up to 3-5
// essential, document-type-specific items missing from the chapter,
// grounded on the original's _analyze_critical_information. Uses the
// metadata-extraction task tag: like metadata extraction, this is a single
// structured read over existing content rather than new prose drafting.
func analyzeCriticalInformation(ctx context.Context, gateway *llm.Gateway, doc *domain.Document) ([]Issue, error) {
	if len(doc.Sections) == 0 {
		return nil, nil
	}

	prompt := buildCriticalInfoPrompt(doc)
	result, err := gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:     prompt,
		MaxTokens:  800,
		Temperature: 0.2,
		Schema:     criticalInfoSchema,
		SchemaName: "critical_information_gaps",
	}, llm.TaskMetadataExtraction)
	if err != nil {
		return nil, err
	}

	rawGaps, _ := result.Data["gaps"].([]any)
	issues := make([]Issue, 0, len(rawGaps))
	for i, raw := range rawGaps {
		if i >= maxCriticalGaps {
			break
		}
		gap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		description, _ := gap["gap"].(string)
		severity, _ := gap["severity"].(string)
		topic, _ := gap["missing_topic"].(string)
		if severity != string(SeverityCritical) && severity != string(SeverityHigh) {
			severity = string(SeverityHigh)
		}
		issues = append(issues, Issue{
			Category:       CategoryCriticalInformation,
			Type:           "missing_critical_information",
			Severity:       Severity(severity),
			Description:    description,
			Recommendation: "Add content about: " + topic,
		})
	}
	return issues, nil
}

func buildCriticalInfoPrompt(doc *domain.Document) string {
	var sb strings.Builder
	n := len(doc.Sections)
	if n > 10 {
		n = 10
	}
	for _, s := range doc.Sections[:n] {
		content := s.Content
		if len(content) > 200 {
			content = content[:200]
		}
		fmt.Fprintf(&sb, "%s: %s...\n", s.Title, content)
	}

	return fmt.Sprintf(
		"Analyze this chapter for missing critical information.\n\n"+
			"Chapter Title: %q\nChapter Type: %s\nNumber of Sections: %d\n\n"+
			"Section Summary:\n%s\n\n"+
			"Identify up to 3-5 CRITICAL items of information that appear to be missing given the chapter type and topic. "+
			"Respond as a JSON object: {\"gaps\": [{\"gap\": \"...\", \"severity\": \"critical|high\", \"missing_topic\": \"...\", \"should_be_in\": \"...\"}]}",
		doc.Title, doc.DocumentType, len(doc.Sections), sb.String(),
	)
}
