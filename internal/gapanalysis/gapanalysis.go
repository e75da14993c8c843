// Package gapanalysis implements the Gap Analyzer (spec §4.E): five
// parallel dimension checks over a completed document, merged into a
// severity-ranked issue list, a completeness score, and a revision verdict.
package gapanalysis

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

// Severity is the closed set used across every dimension's issues.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var severityOrder = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

var severityWeight = map[Severity]float64{
	SeverityCritical: 0.15,
	SeverityHigh:     0.08,
	SeverityMedium:   0.04,
	SeverityLow:      0.02,
}

// Category labels which of the five dimensions produced an Issue.
type Category string

const (
	CategoryContentCompleteness Category = "content_completeness"
	CategorySourceCoverage      Category = "source_coverage"
	CategorySectionBalance      Category = "section_balance"
	CategoryTemporalCoverage    Category = "temporal_coverage"
	CategoryCriticalInformation Category = "critical_information"
)

// Issue is one identified gap.
type Issue struct {
	Category       Category
	Type           string
	Severity       Severity
	Description    string
	Recommendation string
	SectionNumber  int // 1-based; 0 when not section-specific
}

// ResearchGap is a Stage 2 context_building research gap.
type ResearchGap struct {
	Description      string
	Severity         string // stage-2 severity vocabulary: high/medium/low
	AffectedSections []int
}

// KeyReference is a Stage 2 context_building expected reference.
type KeyReference struct {
	Topic       string
	KeyFindings string
}

// Context is the subset of Stage 2 output the analyzer consumes.
type Context struct {
	ResearchGaps  []ResearchGap
	KeyReferences []KeyReference
}

// Report is the full gap analysis result (§4.E).
type Report struct {
	Issues              []Issue
	CompletenessScore   float64
	RequiresRevision    bool
	SeverityCounts      map[Severity]int
}

// Analyze runs all five dimensions in parallel and merges their issues,
// matching the original's analyze_chapter_gaps orchestration.
func Analyze(ctx context.Context, gateway *llm.Gateway, doc *domain.Document, internalSources, externalSources []domain.Source, stage2 Context) (Report, error) {
	var (
		g             errgroup.Group
		completeness  []Issue
		coverage      []Issue
		balance       []Issue
		temporal      []Issue
		critical      []Issue
	)

	g.Go(func() error { completeness = analyzeContentCompleteness(doc, stage2); return nil })
	g.Go(func() error { coverage = analyzeSourceCoverage(doc, internalSources, externalSources); return nil })
	g.Go(func() error { balance = analyzeSectionBalance(doc); return nil })
	g.Go(func() error { temporal = analyzeTemporalCoverage(externalSources); return nil })
	g.Go(func() error {
		issues, err := analyzeCriticalInformation(ctx, gateway, doc)
		if err != nil {
			return nil // AI analysis failure is dropped, not fatal
		}
		critical = issues
		return nil
	})
	_ = g.Wait()

	all := make([]Issue, 0, len(completeness)+len(coverage)+len(balance)+len(temporal)+len(critical))
	all = append(all, completeness...)
	all = append(all, coverage...)
	all = append(all, balance...)
	all = append(all, temporal...)
	all = append(all, critical...)

	sort.SliceStable(all, func(i, j int) bool {
		return severityOrder[all[i].Severity] < severityOrder[all[j].Severity]
	})

	counts := map[Severity]int{}
	for _, issue := range all {
		counts[issue.Severity]++
	}

	score := completenessScore(all)
	report := Report{
		Issues:            all,
		CompletenessScore: score,
		SeverityCounts:    counts,
		RequiresRevision:  counts[SeverityCritical] > 0 || counts[SeverityHigh] > 2 || score < 0.75,
	}
	return report, nil
}

func completenessScore(issues []Issue) float64 {
	score := 1.0
	for _, issue := range issues {
		weight, ok := severityWeight[issue.Severity]
		if !ok {
			weight = severityWeight[SeverityLow]
		}
		score -= weight
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func sectionText(doc *domain.Document) string {
	var sb strings.Builder
	domain.WalkFlatten(doc.Sections, func(s *domain.Section, _ int) {
		sb.WriteString(s.Content)
		sb.WriteString(" ")
	})
	return strings.ToLower(sb.String())
}
