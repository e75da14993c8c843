package orchestrator

import (
	"context"
	"encoding/json"

	"chaptersynth/internal/domain"
)

type stage8Output struct {
	ReferenceCount int `json:"reference_count"`
}

// runStage8 flattens internal and external sources into a numbered
// reference list; domain.BuildReferences already preserves first-seen
// order and each source's Type (§4.H stage 8).
func (o *Orchestrator) runStage8(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	all := append(append([]domain.Source{}, st.internal.Sources...), st.external.Combined...)
	doc.References = domain.BuildReferences(all)
	return json.Marshal(stage8Output{ReferenceCount: len(doc.References)})
}
