package embedpipeline

// embeddingModel is pinned to the large embedding model regardless of the
// lighter model internal/retrieval uses for query embeddings: chapter
// embeddings are a one-time durable write, so the original favors the
// larger, more accurate model over retrieval's latency-sensitive one.
const embeddingModel = "text-embedding-3-large"

// duplicateSimilarityThreshold is the cosine-similarity floor above which
// two chapters are considered the same underlying content (§4.J).
const duplicateSimilarityThreshold = 0.95

// Pipeline wires the embedding/chunking/dedup steps together; it satisfies
// tasks.ChapterRunner.
type Pipeline struct {
	Store    ChapterStore
	Embedder Embedder
}

// New builds a Pipeline.
func New(store ChapterStore, embedder Embedder) *Pipeline {
	return &Pipeline{Store: store, Embedder: embedder}
}
