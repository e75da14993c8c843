package gapanalysis

import (
	"time"

	"chaptersynth/internal/domain"
)

const (
	recentYears   = 2
	outdatedYears = 10
)

// analyzeTemporalCoverage checks the publication-year distribution of
// external sources, grounded on the original's _analyze_temporal_coverage.
func analyzeTemporalCoverage(externalSources []domain.Source) []Issue {
	if len(externalSources) == 0 {
		return []Issue{{
			Category:       CategoryTemporalCoverage,
			Type:           "no_recent_sources",
			Severity:       SeverityHigh,
			Description:    "No external sources available for temporal analysis",
			Recommendation: "Add recent external research",
		}}
	}

	var years []int
	for _, s := range externalSources {
		if s.Year > 0 {
			years = append(years, s.Year)
		}
	}
	if len(years) == 0 {
		return []Issue{{
			Category:       CategoryTemporalCoverage,
			Type:           "no_year_data",
			Severity:       SeverityMedium,
			Description:    "Source publication years not available",
			Recommendation: "Verify source metadata includes publication years",
		}}
	}

	var issues []Issue
	currentYear := time.Now().Year()

	recentCount := 0
	for _, y := range years {
		if y >= currentYear-recentYears {
			recentCount++
		}
	}
	switch {
	case recentCount == 0:
		issues = append(issues, Issue{
			Category:       CategoryTemporalCoverage,
			Type:           "no_recent_sources",
			Severity:       SeverityHigh,
			Description:    "No sources from the last two years",
			Recommendation: "Add recent research",
		})
	case float64(recentCount) < float64(len(years))*0.2:
		issues = append(issues, Issue{
			Category:       CategoryTemporalCoverage,
			Type:           "insufficient_recent_sources",
			Severity:       SeverityMedium,
			Description:    "Too few sources from the last two years",
			Recommendation: "Increase proportion of recent research",
		})
	}

	outdatedThreshold := currentYear - outdatedYears
	outdatedCount := 0
	for _, y := range years {
		if y < outdatedThreshold {
			outdatedCount++
		}
	}
	if float64(outdatedCount) > float64(len(years))*0.5 {
		issues = append(issues, Issue{
			Category:       CategoryTemporalCoverage,
			Type:           "outdated_sources_dominant",
			Severity:       SeverityMedium,
			Description:    "Majority of sources are older than ten years",
			Recommendation: "Update with more recent literature",
		})
	}
	return issues
}
