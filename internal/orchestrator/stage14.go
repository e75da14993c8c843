package orchestrator

import (
	"context"
	"encoding/json"

	"chaptersynth/internal/domain"
)

type stage14Output struct {
	DocumentID string `json:"document_id"`
}

// runStage14 is the terminal stage; Run marks doc completed and emits the
// terminal progress event once every stage, including this one, has
// committed (§4.H stage 14).
func (o *Orchestrator) runStage14(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	return json.Marshal(stage14Output{DocumentID: doc.ID.String()})
}
