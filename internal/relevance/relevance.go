// Package relevance implements the Relevance Filter (spec §4.D): one
// provider call per candidate Source scores it against a query, with at
// most Parallelism (default 10) calls in flight; several sources are never
// scored in one prompt. Only sources at or above a threshold are kept, in
// input order.
package relevance

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const (
	// defaultThreshold matches config.Defaults()'s ai_relevance_threshold.
	defaultThreshold = 0.75
	defaultBatchSize  = 10
)

var relevanceSchema = map[string]any{
	"type":     "object",
	"required": []any{"score", "rationale"},
	"properties": map[string]any{
		"score":     map[string]any{"type": "number"},
		"rationale": map[string]any{"type": "string"},
	},
}

// Options configures Filter.
type Options struct {
	Threshold   float64
	Parallelism int
}

// Score is one source's relevance judgment.
type Score struct {
	Source    domain.Source
	Value     float64
	Rationale string
	Err       error
}

// Filter scores every candidate against query via the Provider Gateway's
// source_relevance task and returns the sources at or above the threshold,
// in the same order they were given (§4.D "deterministic input ordering").
func Filter(ctx context.Context, gateway *llm.Gateway, query string, candidates []domain.Source, opt Options) ([]domain.Source, []Score, error) {
	threshold := opt.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	parallelism := opt.Parallelism
	if parallelism <= 0 {
		parallelism = defaultBatchSize
	}

	scores := make([]Score, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, source := range candidates {
		i, source := i, source
		g.Go(func() error {
			score, rationale, err := scoreOne(gctx, gateway, query, source)
			scores[i] = Score{Source: source, Value: score, Rationale: rationale, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, scores, err
	}

	kept := make([]domain.Source, 0, len(candidates))
	for _, s := range scores {
		if s.Err != nil {
			continue
		}
		if s.Value >= threshold {
			kept = append(kept, s.Source)
		}
	}
	return kept, scores, nil
}

func scoreOne(ctx context.Context, gateway *llm.Gateway, query string, source domain.Source) (float64, string, error) {
	prompt := fmt.Sprintf(
		"Query: %s\n\nCandidate source:\nTitle: %s\nAbstract: %s\n\nScore this source's relevance to the query from 0.0 to 1.0 and give a one-sentence rationale.",
		query, source.Title, source.Abstract,
	)
	result, err := gateway.GenerateStructured(ctx, llm.TextRequest{
		Prompt:     prompt,
		MaxTokens:  256,
		Schema:     relevanceSchema,
		SchemaName: "source_relevance",
	}, llm.TaskSourceRelevance)
	if err != nil {
		return 0, "", err
	}
	score, _ := result.Data["score"].(float64)
	rationale, _ := result.Data["rationale"].(string)
	return clamp01(score), rationale, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
