package orchestrator

import (
	"encoding/json"
	"fmt"

	"chaptersynth/internal/domain"
)

// rehydrate replays already-completed stage blobs back into st, so a
// resumed Run (doc.CurrentStage > 0) doesn't need to recompute or re-spend
// provider calls for stages 1-5, whose output later stages read from
// memory rather than from doc itself. Stages 6 onward store their
// working state directly on doc (Sections, References, scores), so
// nothing beyond 5 needs rehydration.
func (o *Orchestrator) rehydrate(doc *domain.Document, st *runState) error {
	for stage := 1; stage <= doc.CurrentStage && stage <= 5; stage++ {
		blob, ok := doc.StageBlobs[stage]
		if !ok || len(blob) == 0 {
			return fmt.Errorf("stage %d: resume requested but no checkpoint blob present", stage)
		}
		var err error
		switch stage {
		case 1:
			err = json.Unmarshal(blob, &st.analysis)
		case 2:
			err = json.Unmarshal(blob, &st.context)
		case 3:
			err = json.Unmarshal(blob, &st.internal)
		case 4:
			err = json.Unmarshal(blob, &st.external)
		case 5:
			err = json.Unmarshal(blob, &st.plan)
		}
		if err != nil {
			return fmt.Errorf("stage %d: %w", stage, err)
		}
	}
	return nil
}
