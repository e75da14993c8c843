package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/gapanalysis"
	"chaptersynth/internal/llm"
)

const (
	defaultSectionBatchSize = 5
	sectionSourceTopK       = 6
	minKeywordLength        = 4
)

type stage6Output struct {
	SectionCount   int     `json:"section_count"`
	TotalWords     int     `json:"total_words"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	GapAnalysisRan bool    `json:"gap_analysis_ran"`
}

// runStage6 generates every planned section's content, grounded on the
// original's _generate_sections_parallel/_generate_sections_sequential
// split: top-level sections run with bounded concurrency (sequential when
// parallel generation is disabled or there's only one section), while each
// section's subsections are always generated sequentially because they
// share their parent's just-written context.
func (o *Orchestrator) runStage6(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	plans := st.plan.Sections
	allSources := append(append([]domain.Source{}, st.internal.Sources...), st.external.Combined...)

	sections := make([]domain.Section, len(plans))
	costs := make([]float64, len(plans))

	batchSize := o.cfg.SectionGenerationBatchSize
	if batchSize <= 0 {
		batchSize = defaultSectionBatchSize
	}
	if !o.cfg.ParallelSectionGeneration {
		batchSize = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchSize)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			section, cost := o.generateSectionTree(gctx, doc, plan, allSources, i+1)
			sections[i] = section
			costs[i] = cost
			return nil
		})
	}
	_ = g.Wait()

	totalWords := 0
	totalCost := 0.0
	for i := range sections {
		sections[i].Ordinal = i + 1
		totalWords += domain.TotalWordCount([]domain.Section{sections[i]})
		totalCost += costs[i]
	}

	doc.Sections = sections
	doc.TotalWords = totalWords

	out := stage6Output{SectionCount: len(sections), TotalWords: totalWords, TotalCostUSD: totalCost}

	if o.cfg.AutoGapAnalysisEnabled {
		report, err := gapanalysis.Analyze(ctx, o.deps.Gateway, doc, st.internal.Sources, st.external.Combined, gapanalysis.Context{
			ResearchGaps:  st.context.ResearchGaps,
			KeyReferences: st.context.KeyReferences,
		})
		if err == nil {
			blob, _ := json.Marshal(report)
			doc.GapAnalysis = blob
			out.GapAnalysisRan = true
			if o.cfg.HaltOnCriticalGaps && report.SeverityCounts[gapanalysis.SeverityCritical] > 0 {
				return nil, errors.New("halted: gap analysis found critical issues and halt_on_critical_gaps is enabled")
			}
		}
	}

	return json.Marshal(out)
}

func (o *Orchestrator) generateSectionTree(ctx context.Context, doc *domain.Document, plan plannedSection, allSources []domain.Source, ordinal int) (domain.Section, float64) {
	relevant := allocateSources(plan, allSources, sectionSourceTopK)

	content, wordCount, sourceIDs, cost, err := o.generateSectionContent(ctx, doc.Title, plan, relevant)
	section := domain.Section{
		Ordinal:   ordinal,
		Title:     plan.Title,
		Type:      plan.Type,
		Content:   content,
		WordCount: wordCount,
		SourceIDs: sourceIDs,
	}
	if err != nil {
		section.Content = fmt.Sprintf("_Section generation failed: %s_", err.Error())
		section.GenerationError = err.Error()
		section.WordCount = 0
	}

	for subOrdinal, subPlan := range plan.Subsections {
		subContent, subWords, subSourceIDs, subCost, subErr := o.generateSubsectionContent(ctx, doc.Title, plan.Title, subPlan, relevant)
		sub := domain.Section{
			Ordinal:   subOrdinal + 1,
			Title:     subPlan.Title,
			Type:      subPlan.Type,
			Content:   subContent,
			WordCount: subWords,
			SourceIDs: subSourceIDs,
		}
		if subErr != nil {
			sub.Content = fmt.Sprintf("_Subsection generation failed: %s_", subErr.Error())
			sub.GenerationError = subErr.Error()
			sub.WordCount = 0
		}
		cost += subCost
		section.Children = append(section.Children, sub)
	}

	return section, cost
}

func (o *Orchestrator) generateSectionContent(ctx context.Context, chapterTitle string, plan plannedSection, sources []domain.Source) (string, int, []string, float64, error) {
	prompt := sectionPrompt(chapterTitle, plan.Title, plan.Rationale, plan.KeyPoints, plan.EstimatedWordCount, sources)
	result, err := o.deps.Gateway.GenerateText(ctx, llm.TextRequest{
		Prompt:       prompt,
		SystemPrompt: "You are writing one section of an evidence-based medical education chapter.",
		MaxTokens:    wordsToTokenBudget(plan.EstimatedWordCount),
		Temperature:  0.5,
	}, llm.TaskContentDrafting)
	if err != nil {
		return "", 0, nil, 0, err
	}
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return result.Text, wordCount(result.Text), ids, result.CostUSD, nil
}

func (o *Orchestrator) generateSubsectionContent(ctx context.Context, chapterTitle, parentTitle string, plan plannedSection, sources []domain.Source) (string, int, []string, float64, error) {
	prompt := sectionPrompt(chapterTitle+" > "+parentTitle, plan.Title, plan.Rationale, plan.KeyPoints, plan.EstimatedWordCount, sources)
	result, err := o.deps.Gateway.GenerateText(ctx, llm.TextRequest{
		Prompt:       prompt,
		SystemPrompt: "You are writing one subsection, continuing its parent section's context.",
		MaxTokens:    wordsToTokenBudget(plan.EstimatedWordCount),
		Temperature:  0.5,
	}, llm.TaskContentDrafting)
	if err != nil {
		return "", 0, nil, 0, err
	}
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return result.Text, wordCount(result.Text), ids, result.CostUSD, nil
}

func sectionPrompt(chapterContext, title, rationale string, keyPoints []string, estimatedWords int, sources []domain.Source) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chapter: %s\nSection: %s\nRationale: %s\nTarget length: ~%d words\n\n", chapterContext, title, rationale, estimatedWords)
	if len(keyPoints) > 0 {
		fmt.Fprintf(&sb, "Must cover: %s\n\n", strings.Join(keyPoints, "; "))
	}
	if len(sources) > 0 {
		sb.WriteString("Available sources to cite (use [Author, Year] inline):\n")
		for _, s := range sources {
			fmt.Fprintf(&sb, "- %s", s.Title)
			if s.Year > 0 {
				fmt.Fprintf(&sb, " (%d)", s.Year)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Write the section content in markdown, citing sources inline where appropriate.")
	return sb.String()
}

func wordsToTokenBudget(estimatedWords int) int {
	if estimatedWords <= 0 {
		estimatedWords = 500
	}
	return estimatedWords * 2
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// allocateSources scores candidate sources against a planned section's
// title, key points, and source-allocation hint, returning the topK
// keyword-weighted matches (§4.H stage 6 "keyword-and-hint weighted
// top-K"), grounded on the original's _allocate_sources_for_section.
func allocateSources(plan plannedSection, sources []domain.Source, topK int) []domain.Source {
	terms := sectionKeywords(plan)
	type scored struct {
		source domain.Source
		score  float64
	}
	candidates := make([]scored, 0, len(sources))
	for _, s := range sources {
		haystack := strings.ToLower(s.Title + " " + s.Abstract)
		score := 0.0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		score += s.Relevance()
		if score > 0 {
			candidates = append(candidates, scored{source: s, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]domain.Source, len(candidates))
	for i, c := range candidates {
		out[i] = c.source
	}
	return out
}

func sectionKeywords(plan plannedSection) []string {
	raw := strings.ToLower(plan.Title + " " + plan.SourceAllocationHint + " " + strings.Join(plan.KeyPoints, " "))
	words := strings.Fields(raw)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= minKeywordLength {
			out = append(out, w)
		}
	}
	return out
}
