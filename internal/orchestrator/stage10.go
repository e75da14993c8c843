package orchestrator

import (
	"context"
	"encoding/json"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/factcheck"
)

// runStage10 invokes the Fact Checker over the finished document and
// persists its pass/fail verdict and per-section breakdown onto
// doc.FactCheck (§4.H stage 10).
func (o *Orchestrator) runStage10(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	all := append(append([]domain.Source{}, st.internal.Sources...), st.external.Combined...)
	report, err := factcheck.CheckDocument(ctx, o.deps.Gateway, doc, all)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	doc.FactCheck = blob
	return blob, nil
}
