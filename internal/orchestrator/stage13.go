package orchestrator

import (
	"context"
	"encoding/json"

	"chaptersynth/internal/domain"
)

type stage13Output struct {
	Version    string `json:"version"`
	TotalWords int    `json:"total_words"`
}

// runStage13 sets the document's version and finalized totals (§4.H stage 13).
func (o *Orchestrator) runStage13(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	doc.Version = "1.0"
	doc.IsCurrentVersion = true
	doc.TotalWords = domain.TotalWordCount(doc.Sections)
	return json.Marshal(stage13Output{Version: doc.Version, TotalWords: doc.TotalWords})
}
