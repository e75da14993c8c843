package gapanalysis

import (
	"math"

	"chaptersynth/internal/domain"
)

// analyzeSectionBalance flags under/over-sized sections and uneven overall
// balance, grounded on the original's _analyze_section_balance.
func analyzeSectionBalance(doc *domain.Document) []Issue {
	if len(doc.Sections) == 0 {
		return nil
	}

	counts := make([]int, len(doc.Sections))
	total := 0
	for i, s := range doc.Sections {
		counts[i] = s.WordCount
		total += s.WordCount
	}
	avg := float64(total) / float64(len(counts))
	if avg == 0 {
		return nil
	}

	var issues []Issue
	shortThreshold := avg * 0.4
	longThreshold := avg * 2.5

	for i, count := range counts {
		if float64(count) < shortThreshold {
			issues = append(issues, Issue{
				Category:       CategorySectionBalance,
				Type:           "underdeveloped_section",
				Severity:       SeverityMedium,
				Description:    "Section '" + doc.Sections[i].Title + "' is underdeveloped",
				Recommendation: "Expand section '" + doc.Sections[i].Title + "' with more detail",
				SectionNumber:  i + 1,
			})
		}
	}
	for i, count := range counts {
		if float64(count) > longThreshold {
			issues = append(issues, Issue{
				Category:       CategorySectionBalance,
				Type:           "oversized_section",
				Severity:       SeverityLow,
				Description:    "Section '" + doc.Sections[i].Title + "' may be too long",
				Recommendation: "Consider splitting '" + doc.Sections[i].Title + "' into subsections",
				SectionNumber:  i + 1,
			})
		}
	}

	if len(counts) > 2 {
		var variance float64
		for _, c := range counts {
			d := float64(c) - avg
			variance += d * d
		}
		variance /= float64(len(counts))
		cv := math.Sqrt(variance) / avg
		if cv > 0.6 {
			issues = append(issues, Issue{
				Category:       CategorySectionBalance,
				Type:           "uneven_section_balance",
				Severity:       SeverityMedium,
				Description:    "High variability in section lengths",
				Recommendation: "Rebalance sections for more consistent depth",
			})
		}
	}
	return issues
}
