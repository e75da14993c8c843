package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"chaptersynth/internal/domain"
)

type heading struct {
	Level     int    `json:"level"`
	Title     string `json:"title"`
	Anchor    string `json:"anchor"`
	Numbering string `json:"numbering"`
}

type formattingStats struct {
	TotalSections        int `json:"total_sections"`
	EmptySections        int `json:"empty_sections"`
	SectionsWithChildren  int `json:"sections_with_subsections"`
	TotalImages          int `json:"total_images"`
	BrokenImageRefs      int `json:"broken_image_refs"`
}

type validationReport struct {
	Valid          bool            `json:"valid"`
	WarningCount   int             `json:"warning_count"`
	IssueCount     int             `json:"issue_count"`
	Statistics     formattingStats `json:"statistics"`
}

type stage11Output struct {
	TOCMarkdown   string            `json:"toc_markdown"`
	Headings      []heading         `json:"headings"`
	TotalHeadings int               `json:"total_headings"`
	Validation    validationReport  `json:"validation"`
}

var (
	headerSpacingRe = regexp.MustCompile(`(?m)^(#{1,6}\s+.+)\n([^\n])`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	citationSpaceRe = regexp.MustCompile(`(\w)(\[[A-Za-z])`)
	imageBreakRe    = regexp.MustCompile(`(!\[.*?\]\(.*?\))([^\n])`)
	anchorStripRe   = regexp.MustCompile(`[^a-z0-9-]`)
)

// runStage11 extracts headings into a markdown TOC, validates structure
// with non-blocking warnings, and normalizes markdown formatting in place
// (§4.H stage 11), grounded on the original's _extract_all_headings /
// _generate_table_of_contents / _validate_markdown_structure /
// _normalize_markdown_formatting.
func (o *Orchestrator) runStage11(ctx context.Context, doc *domain.Document, st *runState) ([]byte, error) {
	headings := extractHeadings(doc.Sections, "")
	toc := buildTOC(headings)
	validation := validateStructure(doc.Sections)
	normalizeSections(doc.Sections)

	out := stage11Output{
		TOCMarkdown:   toc,
		Headings:      headings,
		TotalHeadings: len(headings),
		Validation:    validation,
	}
	return json.Marshal(out)
}

func extractHeadings(sections []domain.Section, parentNum string) []heading {
	var out []heading
	for i, s := range sections {
		num := strconv.Itoa(i + 1)
		if parentNum != "" {
			num = parentNum + num
		}
		level := strings.Count(parentNum, ".") + 1
		title := s.Title
		if title == "" {
			title = "Section " + num
		}
		out = append(out, heading{Level: level, Title: title, Anchor: slugify(title), Numbering: num})
		if len(s.Children) > 0 {
			out = append(out, extractHeadings(s.Children, num+".")...)
		}
	}
	return out
}

func slugify(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "&", "and")
	return anchorStripRe.ReplaceAllString(s, "")
}

func buildTOC(headings []heading) string {
	if len(headings) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Table of Contents\n\n")
	for _, h := range headings {
		indent := strings.Repeat("  ", h.Level-1)
		fmt.Fprintf(&sb, "%s%s. [%s](#%s)\n", indent, h.Numbering, h.Title, h.Anchor)
	}
	return sb.String()
}

const minMeaningfulContentChars = 50

// validateStructure performs flexible, non-blocking validation: warnings
// are suggestions, never a reason to fail the stage (§4.H "never block").
func validateStructure(sections []domain.Section) validationReport {
	var stats formattingStats
	warnings := 0
	issues := 0

	var walk func(nodes []domain.Section)
	walk = func(nodes []domain.Section) {
		for _, s := range nodes {
			stats.TotalSections++
			if len(strings.TrimSpace(s.Content)) < minMeaningfulContentChars {
				stats.EmptySections++
				warnings++
			}
			stats.TotalImages += len(s.Images)
			for _, img := range s.Images {
				if img.ImageID == "" {
					stats.BrokenImageRefs++
					issues++
				}
				if len(img.Caption) < 10 {
					warnings++
				}
			}
			if strings.Contains(s.Content, "\n# ") || strings.HasPrefix(s.Content, "# ") {
				warnings++ // H1 reserved for the document title
			}
			if len(s.Children) > 0 {
				stats.SectionsWithChildren++
				walk(s.Children)
			}
		}
	}
	walk(sections)

	return validationReport{
		Valid:        stats.BrokenImageRefs == 0,
		WarningCount: warnings,
		IssueCount:   issues,
		Statistics:   stats,
	}
}

// normalizeSections rewrites every section's Content with consistent
// markdown spacing, matching the original's _normalize_markdown_formatting.
func normalizeSections(sections []domain.Section) {
	domain.WalkFlatten(sections, func(s *domain.Section, _ int) {
		s.Content = normalizeContent(s.Content)
	})
}

func normalizeContent(content string) string {
	if content == "" {
		return content
	}
	content = headerSpacingRe.ReplaceAllString(content, "$1\n\n$2")
	content = blankRunRe.ReplaceAllString(content, "\n\n")
	content = citationSpaceRe.ReplaceAllString(content, "$1 $2")
	content = imageBreakRe.ReplaceAllString(content, "$1\n\n$2")

	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	content = strings.Join(lines, "\n")
	return strings.TrimRight(content, "\n") + "\n"
}
