package embedpipeline

import "chaptersynth/internal/domain"

// preferenceScore ranks versions of a duplicate chapter so the dedup scan
// can pick a winner (§4.J+): preference = type_weight(source_type) +
// min(word_count/5000, 2.0) + quality_score + recency_weight(year) +
// detection_confidence. Higher wins.
func preferenceScore(ch domain.Chapter) float64 {
	score := typeWeight(ch.SourceType)

	if ch.WordCount > 0 {
		wordScore := float64(ch.WordCount) / 5000
		if wordScore > 2.0 {
			wordScore = 2.0
		}
		score += wordScore
	}

	score += ch.QualityScore
	score += recencyWeight(ch.Year)
	score += ch.DetectionConfidence

	return score
}

func typeWeight(sourceType string) float64 {
	switch sourceType {
	case "standalone":
		return 3.0
	case "textbook":
		return 2.0
	case "paper":
		return 1.0
	default:
		return 0.0
	}
}

func recencyWeight(year int) float64 {
	switch {
	case year >= 2020:
		return 3.0
	case year >= 2010:
		return 2.0
	case year >= 2000:
		return 1.0
	default:
		return 0.0
	}
}
