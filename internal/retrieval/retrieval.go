// Package retrieval implements the Retrieval Service (§4.B): internal
// corpus search over indexed Chapters, and external literature search
// combining an evidence database track with an AI-grounded track, with
// per-query caching.
package retrieval

import (
	"context"
	"time"

	"chaptersynth/internal/domain"
)

// ChapterIndex is the minimum surface the internal retrieval operation
// needs over the indexed Chapter corpus: an ANN lookup by embedding plus a
// lexical overlap score used by the hybrid re-score formula. Mirrors the
// teacher's persistence/databases.VectorStore + FullTextSearch split,
// collapsed into one port since this domain never swaps index backends
// independently.
type ChapterIndex interface {
	// SimilaritySearch returns the topK nearest Chapters to vector, each
	// tagged with the raw cosine similarity.
	SimilaritySearch(ctx context.Context, vector []float32, topK int) ([]ChapterHit, error)
}

// ChapterHit is one ANN candidate prior to hybrid re-scoring.
type ChapterHit struct {
	Source          domain.Source
	CosineSimilarity float64
	LexicalOverlap   float64
}

// EvidenceDatabase is the evidence-track external literature search port
// (e.g. a PubMed-shaped API). Grounded on the teacher's pattern of a narrow
// client interface per external dependency rather than a generic HTTP
// client leaking into callers.
type EvidenceDatabase interface {
	// Search returns up to m external literature record ids matching query.
	Search(ctx context.Context, query string, m int) ([]string, error)
	// Fetch resolves search result ids into full Source records.
	Fetch(ctx context.Context, ids []string) ([]domain.Source, error)
}

// AIGroundedSearcher is the AI-grounded external research track: submit the
// query to a web-grounded model call and parse referenced sources back out.
type AIGroundedSearcher interface {
	Search(ctx context.Context, query string) ([]domain.Source, error)
}

// QueryCache is the per-query response cache (§4.B "Caching"), keyed by
// normalized query string. Implementations must return a bit-identical
// payload on cache hit.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]domain.Source, bool, error)
	Set(ctx context.Context, key string, sources []domain.Source, ttl time.Duration) error
}
