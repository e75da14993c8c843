package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"chaptersynth/internal/config"
	"chaptersynth/internal/dedup"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/relevance"
	"chaptersynth/internal/retrieval"
)

const externalRetrieveTopM = 15

// stage4Output is stage 4's persisted blob: the unioned, deduplicated,
// filtered external sources plus the evidence-track/AI-grounded-track
// subsets (§4.H "separately tagged subsets").
type stage4Output struct {
	Combined []domain.Source `json:"combined"`
	Evidence []domain.Source `json:"evidence"`
	AI       []domain.Source `json:"ai"`
}

func (o *Orchestrator) runStage4(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	evidence := o.deps.Evidence
	ai := o.deps.AISearcher
	switch o.cfg.ExternalResearchStrategy {
	case config.ResearchEvidenceOnly:
		ai = nil
	case config.ResearchAIOnly:
		evidence = nil
	}

	query := strings.TrimSpace(strings.Join(append([]string{doc.Topic}, st.analysis.PrimaryConcepts...), " "))
	union, _ := retrieval.ExternalRetrieve(ctx, evidence, ai, o.deps.Cache, query, retrieval.ExternalOptions{M: externalRetrieveTopM})

	deduped, err := dedup.Deduplicate(ctx, o.deps.Gateway, union, o.cfg.DedupStrategy, o.cfg.DedupThreshold)
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
	if len(filtered) > externalRetrieveTopM {
		filtered = filtered[:externalRetrieveTopM]
	}

	var evidenceSubset, aiSubset []domain.Source
	for _, s := range filtered {
		switch s.Type {
		case domain.SourceAIResearch:
			aiSubset = append(aiSubset, s)
		default:
			evidenceSubset = append(evidenceSubset, s)
		}
	}

	out := stage4Output{Combined: filtered, Evidence: evidenceSubset, AI: aiSubset}
	st.external = out
	return json.Marshal(out)
}
