// Package factcheck implements the Fact Checker (spec §4.F): per-section
// structured claim extraction and verification against a source list,
// aggregated into an overall accuracy score and pass/fail verdict.
package factcheck

import (
	"context"
	"fmt"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const maxSourcesInPrompt = 20

// Severity mirrors the claim's severity-if-wrong vocabulary (§4.F).
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Claim is one extracted, verified medical claim.
type Claim struct {
	Text            string
	Category        string
	Verified        bool
	Confidence      float64
	SeverityIfWrong Severity
	SourcePointer   string
}

// SectionResult is one section's fact-check output.
type SectionResult struct {
	SectionTitle string
	Claims       []Claim
	CostUSD      float64
}

// Report aggregates fact-check results across every section of a document
// (§4.F "Aggregate across sections").
type Report struct {
	SectionResults   []SectionResult
	TotalClaims      int
	VerifiedClaims   int
	OverallAccuracy  float64
	CriticalIssues   int
	Pass             bool
}

var factCheckSchema = map[string]any{
	"type":     "object",
	"required": []any{"claims"},
	"properties": map[string]any{
		"claims": map[string]any{"type": "array"},
	},
}

// CheckSection extracts and verifies the medical claims in one section's
// content against the given sources, grounded on the original's
// fact_check_section.
func CheckSection(ctx context.Context, gateway *llm.Gateway, chapterTitle string, section domain.Section, sources []domain.Source) (SectionResult, error) {
	prompt := buildSectionPrompt(chapterTitle, section.Title, section.Content, sources)
	result, err := gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:      prompt,
		MaxTokens:   3000,
		Temperature: 0.2,
		Schema:      factCheckSchema,
		SchemaName:  "fact_check",
	}, llm.TaskFactVerification)
	if err != nil {
		return SectionResult{}, err
	}

	claims := parseClaims(result.Data)
	return SectionResult{
		SectionTitle: section.Title,
		Claims:       claims,
		CostUSD:      result.CostUSD,
	}, nil
}

// CheckDocument fact-checks every section and aggregates the result,
// grounded on the original's fact_check_chapter: a failing section is
// skipped without being logged, it does not abort the remaining sections.
func CheckDocument(ctx context.Context, gateway *llm.Gateway, doc *domain.Document, sources []domain.Source) (Report, error) {
	var sectionResults []SectionResult
	var allClaims []Claim

	domain.WalkFlatten(doc.Sections, func(s *domain.Section, _ int) {
		if strings.TrimSpace(s.Content) == "" {
			return
		}
		result, err := CheckSection(ctx, gateway, doc.Title, *s, sources)
		if err != nil {
			return
		}
		sectionResults = append(sectionResults, result)
		allClaims = append(allClaims, result.Claims...)
	})

	return aggregate(sectionResults, allClaims), nil
}

func aggregate(sectionResults []SectionResult, allClaims []Claim) Report {
	total := len(allClaims)
	verified := 0
	criticalUnverified := 0
	for _, c := range allClaims {
		if c.Verified {
			verified++
		} else if c.SeverityIfWrong == SeverityCritical {
			criticalUnverified++
		}
	}

	var accuracy float64
	if total > 0 {
		accuracy = float64(verified) / float64(total)
	}

	// §4.F pass criteria: accuracy >= 0.90, or (>= 0.80 and no critical
	// unverified claims), and total critical issues <= 2.
	pass := (accuracy >= 0.90 || (accuracy >= 0.80 && criticalUnverified == 0)) && criticalUnverified <= 2

	return Report{
		SectionResults:  sectionResults,
		TotalClaims:     total,
		VerifiedClaims:  verified,
		OverallAccuracy: accuracy,
		CriticalIssues:  criticalUnverified,
		Pass:            pass,
	}
}

func buildSectionPrompt(chapterTitle, sectionTitle, content string, sources []domain.Source) string {
	return fmt.Sprintf(
		"You are a medical fact-checker. Verify the medical claims in the following content against the provided sources.\n\n"+
			"Chapter: %s\nSection: %s\n\nContent to verify:\n%s\n\nAvailable sources:\n%s\n\n"+
			"Identify specific medical claims, verify each against the sources, and assign a confidence score (0-1), "+
			"category, verification status, and severity if wrong (critical/high/medium/low). "+
			"If a claim cannot be verified with the sources, mark it unverified. Respond as JSON: "+
			"{\"claims\": [{\"text\": \"...\", \"category\": \"...\", \"verified\": true, \"confidence\": 0.9, \"severity_if_wrong\": \"high\", \"source_pointer\": \"...\"}]}",
		chapterTitle, sectionTitle, content, buildSourceSummary(sources),
	)
}

func buildSourceSummary(sources []domain.Source) string {
	if len(sources) == 0 {
		return "No sources available for verification."
	}
	limit := len(sources)
	if limit > maxSourcesInPrompt {
		limit = maxSourcesInPrompt
	}

	var sb strings.Builder
	for i, s := range sources[:limit] {
		fmt.Fprintf(&sb, "%d. %s", i+1, s.Title)
		if len(s.Authors) > 0 {
			n := len(s.Authors)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&sb, " - %s", strings.Join(s.Authors[:n], ", "))
		}
		if s.Year > 0 {
			fmt.Fprintf(&sb, " (%d)", s.Year)
		}
		if s.Journal != "" {
			fmt.Fprintf(&sb, " - %s", s.Journal)
		}
		if s.ExternalID != "" {
			fmt.Fprintf(&sb, " [%s]", s.ExternalID)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func parseClaims(data map[string]any) []Claim {
	raw, _ := data["claims"].([]any)
	claims := make([]Claim, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		category, _ := m["category"].(string)
		verified, _ := m["verified"].(bool)
		confidence, _ := m["confidence"].(float64)
		severity, _ := m["severity_if_wrong"].(string)
		pointer, _ := m["source_pointer"].(string)
		claims = append(claims, Claim{
			Text:            text,
			Category:        category,
			Verified:        verified,
			Confidence:      confidence,
			SeverityIfWrong: Severity(severity),
			SourcePointer:   pointer,
		})
	}
	return claims
}
