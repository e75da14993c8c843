package orchestrator

import (
	"context"
	"encoding/json"
	"sort"

	"chaptersynth/internal/dedup"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/relevance"
	"chaptersynth/internal/retrieval"
)

const (
	internalRetrieveTopK  = 20
	internalImageLimit    = 40
)

// stage3Output is stage 3's persisted blob: the top internal sources plus
// any matched image references, carried in-memory by runState for stages 6
// and 7 and rehydrated from this blob on resume.
type stage3Output struct {
	Sources []domain.Source `json:"sources"`
	Images  []domain.Image  `json:"images"`
}

func (o *Orchestrator) runStage3(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	queries := retrievalQueries(st.analysis)

	parallelism := o.cfg.InternalRetrievalParallelism
	sources, _ := retrieval.InternalRetrieve(ctx, o.deps.Gateway, o.deps.ChapterIndex, queries, retrieval.InternalOptions{
		TopK:        internalRetrieveTopK,
		Parallelism: parallelism,
	})

	deduped, err := dedup.Deduplicate(ctx, o.deps.Gateway, sources, o.cfg.DedupStrategy, o.cfg.DedupThreshold)
	if err != nil {
		return nil, err
	}

	filtered := deduped
	if o.cfg.AIRelevanceFilterEnabled {
		kept, _, err := relevance.Filter(ctx, o.deps.Gateway, doc.Topic, deduped, relevance.Options{Threshold: o.cfg.AIRelevanceThreshold})
		if err == nil {
			filtered = kept
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Relevance() > filtered[j].Relevance() })
	if len(filtered) > internalRetrieveTopK {
		filtered = filtered[:internalRetrieveTopK]
	}

	var images []domain.Image
	if o.deps.Images != nil {
		images, _ = o.deps.Images.Search(ctx, retrievalQueries(st.analysis), internalImageLimit)
	}

	out := stage3Output{Sources: filtered, Images: images}
	st.internal = out
	return json.Marshal(out)
}

func retrievalQueries(analysis stage1Output) []string {
	seen := map[string]struct{}{}
	var queries []string
	add := func(q string) {
		if q == "" {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	for _, c := range analysis.PrimaryConcepts {
		add(c)
	}
	for _, k := range analysis.Keywords {
		add(k)
	}
	return queries
}
