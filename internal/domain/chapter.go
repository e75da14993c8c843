package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChunkThresholdWords is the strict lower bound above which a Chapter gets
// boundary-aware chunk embeddings (§3: "word_count == 4000 ⇒ no chunks").
const ChunkThresholdWords = 4000

// Book is a top-level PDF-derived container. Books do not embed Chapters
// (§9: avoid cyclic references) — Chapters reference their Book by id only.
type Book struct {
	ID        uuid.UUID
	Title     string
	Authors   []string
	SourceType string // "textbook" | "standalone" | "paper", used by §4.J preference scoring
	CreatedAt time.Time
}

// Chunk is a boundary-aware slice of a long Chapter's text, carrying a
// breadcrumb of the heading it falls under.
type Chunk struct {
	Index             int
	Text              string
	StartOffset       int
	EndOffset         int
	PrecedingHeading  string
	Embedding         []float32
}

// Chapter is a text unit extracted from a Book (or a standalone paper
// treated as a single chapter).
type Chapter struct {
	ID     uuid.UUID
	BookID uuid.UUID

	Title     string
	PageStart int
	PageEnd   int
	Text      string
	WordCount int

	Embedding      []float32
	EmbeddingModel string
	EmbeddedAt     time.Time

	Chunks []Chunk

	IsDuplicate        bool
	DuplicateGroupID   string
	DuplicateOfID      uuid.UUID
	PreferenceScore    float64
	DetectionConfidence float64

	QualityScore float64
	Year         int
	SourceType   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NeedsChunking reports whether this chapter crosses the strict >4000-word
// boundary requiring boundary-aware chunk embeddings.
func (c *Chapter) NeedsChunking() bool {
	return c.WordCount > ChunkThresholdWords
}
