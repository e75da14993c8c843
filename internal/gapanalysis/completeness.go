package gapanalysis

import (
	"sort"
	"strings"

	"chaptersynth/internal/domain"
)

// analyzeContentCompleteness checks whether Stage 2's research gaps and key
// references are reflected in the generated section text, grounded on the
// original's _analyze_content_completeness (keyword-presence probe, not
// semantic similarity — matched here deliberately, see DESIGN.md).
func analyzeContentCompleteness(doc *domain.Document, stage2 Context) []Issue {
	var issues []Issue
	text := sectionText(doc)

	for _, gap := range stage2.ResearchGaps {
		topic := strings.ToLower(gap.Description)
		terms := keyTerms(topic, 3)
		if len(terms) == 0 {
			continue
		}
		if !anyContains(text, terms) {
			issues = append(issues, Issue{
				Category:       CategoryContentCompleteness,
				Type:           "missing_research_gap",
				Severity:       mapGapSeverity(gap.Severity),
				Description:    "Research gap not addressed: " + truncate(gap.Description, 100),
				Recommendation: "Add content addressing: " + truncate(topic, 100),
			})
		}
	}

	missingRefs := 0
	for _, ref := range stage2.KeyReferences {
		topic := strings.ToLower(ref.Topic)
		findings := strings.ToLower(ref.KeyFindings)
		if len(topic) <= 4 {
			continue
		}
		if !strings.Contains(text, topic) && (findings == "" || !strings.Contains(text, findings)) {
			missingRefs++
		}
	}
	if missingRefs > 0 {
		severity := SeverityMedium
		if missingRefs > 3 {
			severity = SeverityHigh
		}
		issues = append(issues, Issue{
			Category:       CategoryContentCompleteness,
			Type:           "missing_key_references",
			Severity:       severity,
			Description:    itoaN(missingRefs) + " key references not adequately covered",
			Recommendation: "Incorporate findings from missing key references",
		})
	}
	return issues
}

// mapGapSeverity maps Stage 2's severity vocabulary onto the analysis's,
// matching the original's _map_gap_severity_to_analysis: Stage 2's own
// scale is shifted up a notch, since an unaddressed gap is worse than the
// gap's original rating implied.
func mapGapSeverity(stage2Severity string) Severity {
	switch strings.ToLower(stage2Severity) {
	case "high":
		return SeverityCritical
	case "medium":
		return SeverityHigh
	case "low":
		return SeverityMedium
	default:
		return SeverityMedium
	}
}

// analyzeSourceCoverage flags high-relevance sources that were never cited
// and checks the internal/external source mix, grounded on the original's
// _analyze_source_coverage.
func analyzeSourceCoverage(doc *domain.Document, internalSources, externalSources []domain.Source) []Issue {
	var issues []Issue
	text := sectionText(doc)

	all := make([]domain.Source, 0, len(internalSources)+len(externalSources))
	all = append(all, internalSources...)
	all = append(all, externalSources...)

	var unused []domain.Source
	for _, s := range all {
		if s.Relevance() <= 0.85 {
			continue
		}
		if isCited(s, text) {
			continue
		}
		unused = append(unused, s)
	}

	if len(unused) > 0 {
		sort.SliceStable(unused, func(i, j int) bool { return unused[i].Relevance() > unused[j].Relevance() })
		top := unused
		if len(top) > 5 {
			top = top[:5]
		}
		severity := SeverityMedium
		if len(unused) > 5 {
			severity = SeverityHigh
		}
		for _, s := range top {
			issues = append(issues, Issue{
				Category:       CategorySourceCoverage,
				Type:           "unused_high_value_source",
				Severity:       severity,
				Description:    "High-relevance source not cited: " + truncate(s.Title, 80),
				Recommendation: "Consider citing: " + truncate(s.Title, 100),
			})
		}
	}

	if len(all) > 0 {
		externalRatio := float64(len(externalSources)) / float64(len(all))
		if externalRatio < 0.2 {
			issues = append(issues, Issue{
				Category:       CategorySourceCoverage,
				Type:           "low_external_sources",
				Severity:       SeverityMedium,
				Description:    "Few external sources - may lack recent research",
				Recommendation: "Incorporate more recent external literature",
			})
		} else if externalRatio > 0.8 {
			issues = append(issues, Issue{
				Category:       CategorySourceCoverage,
				Type:           "low_internal_sources",
				Severity:       SeverityLow,
				Description:    "Few internal sources - may lack depth",
				Recommendation: "Consider referencing more indexed literature",
			})
		}
	}
	return issues
}

func isCited(s domain.Source, text string) bool {
	titleWords := keyTerms(strings.ToLower(s.Title), 3)
	if anyContains(text, titleWords) {
		return true
	}
	if s.ExternalID != "" && strings.Contains(text, strings.ToLower(s.ExternalID)) {
		return true
	}
	return false
}

// keyTerms mirrors the original's "terms longer than 4 chars, first N" probe.
func keyTerms(s string, n int) []string {
	var terms []string
	for _, term := range strings.Fields(s) {
		if len(term) > 4 {
			terms = append(terms, term)
			if len(terms) == n {
				break
			}
		}
	}
	return terms
}

func anyContains(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func itoaN(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
