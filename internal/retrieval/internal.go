package retrieval

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const (
	defaultTopK           = 20
	hybridCosineWeight    = 0.7
	hybridLexicalWeight   = 0.2
	hybridMetadataWeight  = 0.1
	metadataFreshnessHalf = 0.4
	embeddingModel        = "text-embedding-3-small"
)

// InternalOptions configures InternalRetrieve.
type InternalOptions struct {
	// TopK is the number of ANN candidates considered per query before
	// hybrid re-scoring (§4.B default 20).
	TopK int
	// Parallelism bounds concurrent query execution (§4.B "bounded
	// parallelism"); config.Config.InternalRetrievalParallelism feeds this.
	Parallelism int
}

// InternalRetrieve embeds each query, searches the Chapter index, re-scores
// candidates with the hybrid formula, and returns the union of
// per-query top sources sorted by hybrid score descending. A failing query
// is logged (via the returned per-query error slice) but does not abort the
// batch (§4.B "partial failures are logged but do not abort the batch").
func InternalRetrieve(ctx context.Context, gateway *llm.Gateway, index ChapterIndex, queries []string, opt InternalOptions) ([]domain.Source, []error) {
	topK := opt.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	parallelism := opt.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([][]domain.Source, len(queries))
	errs := make([]error, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			sources, err := retrieveOne(gctx, gateway, index, q, topK)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = sources
			return nil
		})
	}
	// errgroup only returns an error here if a Go func itself returned one,
	// which retrieveOne never does — per-query failures are captured in errs.
	_ = g.Wait()

	seen := make(map[string]struct{})
	var out []domain.Source
	for _, sources := range results {
		for _, s := range sources {
			key := dedupeKey(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out, errs
}

func retrieveOne(ctx context.Context, gateway *llm.Gateway, index ChapterIndex, query string, topK int) ([]domain.Source, error) {
	emb, err := gateway.GenerateEmbedding(ctx, query, embeddingModel)
	if err != nil {
		return nil, err
	}
	hits, err := index.SimilaritySearch(ctx, emb.Vector, topK)
	if err != nil {
		return nil, err
	}
	scored := make([]scoredSource, 0, len(hits))
	for _, h := range hits {
		score := hybridScore(h)
		scored = append(scored, scoredSource{source: h.Source, score: score})
	}
	sortByScoreDesc(scored)
	out := make([]domain.Source, len(scored))
	for i, s := range scored {
		s.source.ModelScore = s.score
		out[i] = s.source
	}
	return out, nil
}

type scoredSource struct {
	source domain.Source
	score  float64
}

func sortByScoreDesc(s []scoredSource) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// hybridScore implements §4.B's re-score formula:
// 0.7·cosine_similarity + 0.2·lexical_overlap + 0.1·metadata_boost.
func hybridScore(h ChapterHit) float64 {
	boost := metadataBoost(h.Source)
	return hybridCosineWeight*h.CosineSimilarity + hybridLexicalWeight*h.LexicalOverlap + hybridMetadataWeight*boost
}

// metadataBoost rewards non-duplicate, more-recent sources (§4.B "rewards
// non-duplicate, higher-quality, more-recent sources"). Quality here is
// approximated by non-duplicate status (duplicates have already lost a
// round of review in the Deduplication Engine); recency decays linearly
// over a 20-year horizon. This weighting is an Open Question resolved here
// since the spec names the reward factors but not their relative weight.
func metadataBoost(s domain.Source) float64 {
	var boost float64
	if !s.IsDuplicate {
		boost += 1 - metadataFreshnessHalf
	}
	if s.Year > 0 {
		age := time.Now().Year() - s.Year
		if age < 0 {
			age = 0
		}
		recency := 1 - float64(age)/20
		if recency < 0 {
			recency = 0
		}
		boost += metadataFreshnessHalf * recency
	}
	return boost
}

func dedupeKey(s domain.Source) string {
	if s.ExternalID != "" {
		return s.ExternalID
	}
	return strings.ToLower(strings.TrimSpace(s.Title))
}
