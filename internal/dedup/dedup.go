// Package dedup implements the Deduplication Engine (§4.C): exact, fuzzy,
// and semantic strategies for collapsing near-duplicate Sources, merging
// the survivor's metadata from every duplicate it absorbs.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"chaptersynth/internal/config"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const (
	defaultThreshold  = 0.85
	fuzzyTitleWeight  = 0.6
	fuzzyAuthorWeight = 0.3
	fuzzyYearWeight   = 0.1
	embeddingModel    = "text-embedding-3-small"
	abstractTruncate  = 500
)

// Deduplicate dispatches to the configured strategy, matching the
// original's "unknown strategy falls back to exact" behavior
// (deduplication_service.py's deduplicate_sources).
func Deduplicate(ctx context.Context, gateway *llm.Gateway, sources []domain.Source, strategy config.DedupStrategy, threshold float64) ([]domain.Source, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	switch strategy {
	case config.DedupExact:
		return deduplicateExact(sources), nil
	case config.DedupFuzzy:
		return deduplicateFuzzy(sources, threshold), nil
	case config.DedupSemantic:
		return deduplicateSemantic(ctx, gateway, sources, threshold)
	default:
		return deduplicateExact(sources), nil
	}
}

// deduplicateExact matches the original's _deduplicate_exact: a hash of
// normalized title plus doi/pmid (falling back to title+authors+year).
func deduplicateExact(sources []domain.Source) []domain.Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		hash := sourceHash(s)
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}
		s.DedupHash = hash
		s.DedupStrategy = "exact"
		s.IsDuplicate = false
		out = append(out, s)
	}
	return out
}

func sourceHash(s domain.Source) string {
	title := strings.ToLower(strings.TrimSpace(s.Title))
	doi, pmid := extractDOIPMID(s.ExternalID)

	var content string
	switch {
	case doi != "":
		content = title + ":" + doi
	case pmid != "":
		content = title + ":" + pmid
	default:
		authors := make([]string, len(s.Authors))
		copy(authors, s.Authors)
		sort.Strings(authors)
		content = fmt.Sprintf("%s:%s:%d", title, strings.ToLower(strings.Join(authors, ",")), s.Year)
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// extractDOIPMID pulls a doi/pmid-shaped identifier out of ExternalID,
// since domain.Source unifies doi/pmid/url into one field (§3).
func extractDOIPMID(externalID string) (doi, pmid string) {
	id := strings.TrimSpace(externalID)
	switch {
	case strings.HasPrefix(strings.ToLower(id), "10."):
		return strings.ToLower(id), ""
	case id != "" && !strings.Contains(id, "/") && !strings.Contains(id, ":"):
		return "", id
	default:
		return "", ""
	}
}

// deduplicateFuzzy matches the original's _deduplicate_fuzzy: each source
// is compared against every unique survivor so far; above-threshold best
// match is merged into the survivor rather than kept separately.
func deduplicateFuzzy(sources []domain.Source, threshold float64) []domain.Source {
	var unique []domain.Source
	for _, s := range sources {
		bestIdx := -1
		bestSim := 0.0
		for j, u := range unique {
			sim := fuzzySimilarity(s, u)
			if sim >= threshold && sim > bestSim {
				bestIdx = j
				bestSim = sim
			}
		}
		if bestIdx >= 0 {
			unique[bestIdx] = mergeSourceMetadata(unique[bestIdx], s, "fuzzy")
		} else {
			s.IsDuplicate = false
			s.DedupStrategy = "fuzzy"
			unique = append(unique, s)
		}
	}
	return unique
}

// fuzzySimilarity is the original's weighted blend: 0.6 title sequence
// similarity + 0.3 Jaccard over author sets + 0.1 year proximity.
func fuzzySimilarity(a, b domain.Source) float64 {
	var score float64

	titleA := strings.ToLower(strings.TrimSpace(a.Title))
	titleB := strings.ToLower(strings.TrimSpace(b.Title))
	if titleA != "" && titleB != "" {
		score += sequenceSimilarity(titleA, titleB) * fuzzyTitleWeight
	}

	authorsA := normalizeAuthorSet(a.Authors)
	authorsB := normalizeAuthorSet(b.Authors)
	if len(authorsA) > 0 && len(authorsB) > 0 {
		score += jaccard(authorsA, authorsB) * fuzzyAuthorWeight
	}

	if a.Year > 0 && b.Year > 0 {
		diff := a.Year - b.Year
		if diff < 0 {
			diff = -diff
		}
		var yearSim float64
		switch {
		case diff <= 1:
			yearSim = 1.0
		case diff <= 2:
			yearSim = 0.5
		}
		score += yearSim * fuzzyYearWeight
	}
	return score
}

func normalizeAuthorSet(authors []string) map[string]struct{} {
	out := make(map[string]struct{}, len(authors))
	for _, a := range authors {
		out[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// mergeSourceMetadata matches the original's _merge_source_metadata: the
// survivor absorbs the duplicate's title into alternative_titles, fills
// empty identifier fields, keeps the longer abstract, and increments
// duplicate_count.
func mergeSourceMetadata(survivor, duplicate domain.Source, strategy string) domain.Source {
	if duplicate.Title != "" && duplicate.Title != survivor.Title {
		survivor.AlternativeTitles = append(survivor.AlternativeTitles, duplicate.Title)
	}
	if survivor.ExternalID == "" && duplicate.ExternalID != "" {
		survivor.ExternalID = duplicate.ExternalID
	}
	if len(duplicate.Abstract) > len(survivor.Abstract) {
		survivor.Abstract = duplicate.Abstract
	}
	survivor.DuplicateCount++
	survivor.DedupStrategy = strategy
	return survivor
}

// deduplicateSemantic matches the original's _deduplicate_semantic: embed
// each source's title+abstract[:500]+authors+year concatenation and
// compare by cosine similarity. On embedding failure it falls back to
// fuzzy, mirroring the original's try/except.
func deduplicateSemantic(ctx context.Context, gateway *llm.Gateway, sources []domain.Source, threshold float64) ([]domain.Source, error) {
	embeddings := make([][]float32, len(sources))
	for i, s := range sources {
		text := sourceEmbeddingText(s)
		result, err := gateway.GenerateEmbedding(ctx, text, embeddingModel)
		if err != nil {
			return deduplicateFuzzy(sources, threshold), nil
		}
		embeddings[i] = result.Vector
	}

	var unique []domain.Source
	var uniqueEmbeddings [][]float32
	for i, s := range sources {
		bestIdx := -1
		bestSim := 0.0
		for j, ue := range uniqueEmbeddings {
			sim := cosineSimilarity(embeddings[i], ue)
			if sim >= threshold && sim > bestSim {
				bestIdx = j
				bestSim = sim
			}
		}
		if bestIdx >= 0 {
			unique[bestIdx] = mergeSourceMetadata(unique[bestIdx], s, "semantic")
		} else {
			s.IsDuplicate = false
			s.DedupStrategy = "semantic"
			unique = append(unique, s)
			uniqueEmbeddings = append(uniqueEmbeddings, embeddings[i])
		}
	}
	return unique, nil
}

func sourceEmbeddingText(s domain.Source) string {
	var parts []string
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	if s.Abstract != "" {
		abstract := s.Abstract
		if len(abstract) > abstractTruncate {
			abstract = abstract[:abstractTruncate]
		}
		parts = append(parts, abstract)
	}
	if len(s.Authors) > 0 {
		n := len(s.Authors)
		if n > 3 {
			n = 3
		}
		parts = append(parts, "By "+strings.Join(s.Authors[:n], ", "))
	}
	if s.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d)", s.Year))
	}
	return strings.Join(parts, " ")
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (sqrt(magA) * sqrt(magB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 32; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// Stats mirrors the original's get_deduplication_stats.
type Stats struct {
	TotalSources      int
	UniqueSources     int
	DuplicateSources  int
	DeduplicationRate float64
	RetentionRate     float64
	StrategiesUsed    map[string]int
}

// ComputeStats summarizes a deduplicated source list.
func ComputeStats(sources []domain.Source) Stats {
	total := len(sources)
	strategies := make(map[string]int)
	unique := 0
	for _, s := range sources {
		if !s.IsDuplicate {
			unique++
			strategy := s.DedupStrategy
			if strategy == "" {
				strategy = "unknown"
			}
			strategies[strategy]++
		}
	}
	duplicates := total - unique
	stats := Stats{
		TotalSources:     total,
		UniqueSources:    unique,
		DuplicateSources: duplicates,
		StrategiesUsed:   strategies,
	}
	if total > 0 {
		stats.DeduplicationRate = float64(duplicates) / float64(total) * 100
		stats.RetentionRate = float64(unique) / float64(total) * 100
	}
	return stats
}
