package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/llm"
)

const (
	sectionImageLimit    = 3
	subsectionImageLimit = 2
	captionContextChars  = 500
	sectionKeywordWords  = 200
)

type stage7Output struct {
	ImagesAvailable int `json:"images_available"`
	ImagesUsed      int `json:"images_used"`
}

// runStage7 matches available images to sections by keyword overlap plus a
// section-type bonus, grounded on the original's _match_images_to_content /
// _generate_image_caption (§4.H stage 7).
func (o *Orchestrator) runStage7(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	images := st.internal.Images
	if len(images) == 0 {
		return json.Marshal(stage7Output{})
	}

	used := map[string]bool{}
	domain.WalkFlatten(doc.Sections, func(s *domain.Section, depth int) {
		limit := sectionImageLimit
		if depth > 0 {
			limit = subsectionImageLimit
		}
		matches := matchImagesToContent(s.Title, s.Content, s.Type, images, used, limit)
		placements := make([]domain.ImagePlacement, 0, len(matches))
		for _, img := range matches {
			caption := o.generateImageCaption(ctx, img, s.Title, truncateRunes(s.Content, captionContextChars))
			placements = append(placements, domain.ImagePlacement{ImageID: img.ID, Caption: caption, Relevance: 1})
			used[img.ID] = true
		}
		s.Images = placements
	})

	return json.Marshal(stage7Output{ImagesAvailable: len(images), ImagesUsed: len(used)})
}

func matchImagesToContent(title, content string, sectionType domain.SectionType, images []domain.Image, used map[string]bool, maxImages int) []domain.Image {
	terms := contentKeywords(title, content)

	type scored struct {
		image domain.Image
		score float64
	}
	var candidates []scored
	for _, img := range images {
		if used[img.ID] {
			continue
		}
		caption := strings.ToLower(img.Caption)
		description := strings.ToLower(img.Description)
		keywords := strings.ToLower(strings.Join(img.Keywords, " "))

		score := 0.0
		for _, term := range terms {
			if strings.Contains(caption, term) {
				score += 3.0
			}
			if strings.Contains(description, term) {
				score += 2.0
			}
			if strings.Contains(keywords, term) {
				score += 1.5
			}
		}
		score += sectionTypeImageBonus(sectionType, caption)
		if score > 0 {
			candidates = append(candidates, scored{image: img, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > maxImages {
		candidates = candidates[:maxImages]
	}
	out := make([]domain.Image, len(candidates))
	for i, c := range candidates {
		out[i] = c.image
	}
	return out
}

func sectionTypeImageBonus(sectionType domain.SectionType, caption string) float64 {
	var terms []string
	switch sectionType {
	case domain.SectionSurgicalTechnique:
		terms = []string{"surgical", "procedure", "approach", "technique"}
	case domain.SectionPathophysiology:
		terms = []string{"anatomy", "pathology", "microscopic", "cellular"}
	case domain.SectionDiagnosticEvaluation:
		terms = []string{"mri", "ct", "imaging", "scan", "x-ray"}
	default:
		return 0
	}
	for _, t := range terms {
		if strings.Contains(caption, t) {
			return 2.0
		}
	}
	return 0
}

func contentKeywords(title, content string) []string {
	words := strings.Fields(strings.ToLower(title))
	contentWords := strings.Fields(strings.ToLower(content))
	if len(contentWords) > sectionKeywordWords {
		contentWords = contentWords[:sectionKeywordWords]
	}
	words = append(words, contentWords...)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > minKeywordLength-1 && !commonWords[w] {
			out = append(out, w)
		}
	}
	return out
}

var commonWords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true,
	"this": true, "that": true, "these": true, "those": true, "from": true,
	"which": true, "should": true, "also": true, "such": true, "have": true,
	"been": true, "were": true,
}

func (o *Orchestrator) generateImageCaption(ctx context.Context, img domain.Image, sectionTitle, sectionContext string) string {
	if len(img.Caption) > 20 {
		prompt := fmt.Sprintf(
			"Enhance this image caption for the section %q.\nContext: %s\nExisting caption: %s\n\n"+
				"Return only a brief (1-2 sentence) contextual caption.",
			sectionTitle, sectionContext, img.Caption,
		)
		if text := o.captionCall(ctx, prompt); text != "" {
			return text
		}
		return img.Caption
	}

	prompt := fmt.Sprintf(
		"Generate a brief image caption for the section %q.\nContext: %s\nImage description: %s\n\n"+
			"Return only a brief (1-2 sentence) caption.",
		sectionTitle, sectionContext, img.Description,
	)
	if text := o.captionCall(ctx, prompt); text != "" {
		return text
	}
	return fmt.Sprintf("Figure: %s", sectionTitle)
}

func (o *Orchestrator) captionCall(ctx context.Context, prompt string) string {
	result, err := o.deps.Gateway.GenerateText(ctx, llm.TextRequest{
		Prompt:      prompt,
		MaxTokens:   100,
		Temperature: 0.5,
	}, llm.TaskSummarization)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(result.Text)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
