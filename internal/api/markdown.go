package api

import (
	"fmt"
	"strconv"
	"strings"

	"chaptersynth/internal/domain"
)

// RenderMarkdown walks a completed Document's section tree into a single
// markdown document: title, table of contents, section bodies at
// heading-depth matching nesting, and a numbered reference list. Grounded
// on stage 11's TOC-building and normalization helpers
// (internal/orchestrator/stage11.go), reused here as the one place a full
// document gets flattened to markdown rather than just validated in place.
func RenderMarkdown(doc *domain.Document) string {
	var sb strings.Builder

	title := doc.Title
	if title == "" {
		title = doc.Topic
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	if toc := buildMarkdownTOC(doc.Sections); toc != "" {
		sb.WriteString(toc)
		sb.WriteString("\n")
	}

	domain.WalkFlatten(doc.Sections, func(s *domain.Section, depth int) {
		level := depth + 2 // document title owns H1; top-level sections start at H2
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(&sb, "%s %s\n\n", strings.Repeat("#", level), headingTitle(s))
		if s.Content != "" {
			sb.WriteString(s.Content)
			if !strings.HasSuffix(s.Content, "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
		for _, img := range s.Images {
			fmt.Fprintf(&sb, "![%s](%s)\n\n", img.Caption, img.ImageID)
		}
	})

	if len(doc.References) > 0 {
		sb.WriteString("## References\n\n")
		for _, ref := range doc.References {
			sb.WriteString(renderReference(ref))
		}
	}

	return sb.String()
}

func headingTitle(s *domain.Section) string {
	if s.Title != "" {
		return s.Title
	}
	return "Section " + strconv.Itoa(s.Ordinal+1)
}

func buildMarkdownTOC(sections []domain.Section) string {
	var headings []string
	domain.WalkFlatten(sections, func(s *domain.Section, depth int) {
		indent := strings.Repeat("  ", depth)
		headings = append(headings, fmt.Sprintf("%s- %s", indent, headingTitle(s)))
	})
	if len(headings) == 0 {
		return ""
	}
	return "## Table of Contents\n\n" + strings.Join(headings, "\n") + "\n"
}

func renderReference(ref domain.Reference) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d. %s", ref.Number, ref.Title)
	if len(ref.Authors) > 0 {
		fmt.Fprintf(&sb, " — %s", strings.Join(ref.Authors, ", "))
	}
	if ref.Year > 0 {
		fmt.Fprintf(&sb, " (%d)", ref.Year)
	}
	if ref.Journal != "" {
		fmt.Fprintf(&sb, ". %s", ref.Journal)
	}
	if ref.ExternalID != "" {
		fmt.Fprintf(&sb, " [%s]", ref.ExternalID)
	}
	sb.WriteString("\n")
	return sb.String()
}

// wordCount is the whitespace-split length used to populate a freshly
// ingested Chapter's WordCount, matching §3's
// "word_count equals the whitespace-split length of content" invariant.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
