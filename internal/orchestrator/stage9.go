package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"chaptersynth/internal/domain"
)

type stage9Output struct {
	Depth    float64 `json:"depth"`
	Coverage float64 `json:"coverage"`
	Currency float64 `json:"currency"`
	Evidence float64 `json:"evidence"`
}

// runStage9 computes the four [0,1] quality scores per §4.H stage 9's
// exact formulas.
func (o *Orchestrator) runStage9(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	sectionCount := len(doc.Sections)
	referenceCount := len(doc.References)

	out := stage9Output{
		Depth:    minF(1, float64(doc.TotalWords)/2000),
		Coverage: minF(1, float64(sectionCount)/5),
		Evidence: minF(1, float64(referenceCount)/15),
		Currency: currencyScore(append(append([]domain.Source{}, st.internal.Sources...), st.external.Combined...)),
	}

	doc.DepthScore = out.Depth
	doc.CoverageScore = out.Coverage
	doc.CurrencyScore = out.Currency
	doc.EvidenceScore = out.Evidence

	return json.Marshal(out)
}

func currencyScore(sources []domain.Source) float64 {
	now := time.Now().Year()
	var total float64
	var n int
	for _, s := range sources {
		if s.Year == 0 {
			continue
		}
		age := now - s.Year
		switch {
		case age <= 3:
			total += 1.0
		case age <= 5:
			total += 0.8
		case age <= 10:
			total += 0.5
		default:
			total += 0.2
		}
		n++
	}
	if n == 0 {
		return 0.5
	}
	return total / float64(n)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
