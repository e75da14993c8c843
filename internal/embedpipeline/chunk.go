package embedpipeline

import (
	"regexp"
	"strings"
)

const (
	chunkTokenSize     = 1024
	chunkOverlapTokens = 128
	charsPerToken      = 4
)

// Chunk is one boundary-respecting slice of a long chapter's text, carrying
// the heading it falls under for retrieval context.
type Chunk struct {
	Index            int
	Text             string
	TokenCount       int
	StartOffset      int
	EndOffset        int
	PrecedingHeading string
	ContainsHeadings []string
}

var headingPattern = regexp.MustCompile(`^([A-Z][A-Z\s]+|[0-9IVX]+\.?\s+\S.*)$`)

var sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)

// IntelligentChunk splits text into ~chunkTokenSize-token chunks, preferring
// paragraph boundaries, carrying a chunkOverlapTokens-token sentence-level
// overlap into the next chunk, and tracking the most recent heading as a
// breadcrumb (§4.J "respecting paragraph and sentence boundaries, carry a
// preceding_heading breadcrumb"), ported from the original's
// intelligent_chunk/get_last_sentences.
func IntelligentChunk(text string) []Chunk {
	chunkSizeChars := chunkTokenSize * charsPerToken
	overlapChars := chunkOverlapTokens * charsPerToken

	headings := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && headingPattern.MatchString(trimmed) {
			headings[trimmed] = true
		}
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []Chunk
	var current strings.Builder
	currentOffset := 0
	var precedingHeading string
	var containsHeadings []string
	searchFrom := 0

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Index:            len(chunks),
			Text:             s,
			TokenCount:       len(s) / charsPerToken,
			StartOffset:      currentOffset,
			EndOffset:        currentOffset + current.Len(),
			PrecedingHeading: precedingHeading,
			ContainsHeadings: append([]string(nil), containsHeadings...),
		})
	}

	for _, rawParagraph := range paragraphs {
		paragraph := strings.TrimSpace(rawParagraph)
		if paragraph == "" {
			continue
		}

		isHeading := headings[paragraph]
		if isHeading {
			precedingHeading = paragraph
			containsHeadings = nil
		}

		if current.Len()+len(paragraph) > chunkSizeChars && current.Len() > 0 {
			flush()

			overlapText := lastSentences(current.String(), overlapChars)
			currentOffset += current.Len() - len(overlapText)

			current.Reset()
			if overlapText != "" {
				current.WriteString(overlapText)
				current.WriteString("\n\n")
			}
			current.WriteString(paragraph)
			containsHeadings = nil
		} else if current.Len() > 0 {
			current.WriteString("\n\n")
			current.WriteString(paragraph)
		} else {
			current.WriteString(paragraph)
			if idx := strings.Index(text[searchFrom:], paragraph); idx >= 0 {
				currentOffset = searchFrom + idx
			}
		}
		searchFrom = currentOffset + len(paragraph)

		if isHeading && !containsString(containsHeadings, paragraph) {
			containsHeadings = append(containsHeadings, paragraph)
		}
	}

	if current.Len() > 0 {
		flush()
	}

	return chunks
}

// lastSentences returns as many complete trailing sentences of text as fit
// within maxChars, used to seed the next chunk's overlap.
func lastSentences(text string, maxChars int) string {
	sentences := sentenceEndRe.Split(text, -1)
	var kept []string
	length := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		s := sentences[i]
		if length+len(s) > maxChars {
			break
		}
		kept = append([]string{s}, kept...)
		length += len(s)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(kept, ". ") + ".")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
