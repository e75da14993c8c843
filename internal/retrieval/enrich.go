package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"

	"chaptersynth/internal/domain"
)

const (
	enrichTimeout  = 15 * time.Second
	enrichMaxBytes = 4 * 1000 * 1000
)

// Enricher extracts a clean markdown rendering of a Source's external URL
// before falling back to its abstract (§4.B+ "Evidence record enrichment"),
// so enriched sources carry the same heading/paragraph structure
// RenderMarkdown expects rather than a flat wall of text.
type Enricher struct {
	client *http.Client
}

// NewEnricher builds an Enricher with a bounded-timeout HTTP client.
func NewEnricher() *Enricher {
	return &Enricher{client: &http.Client{Timeout: enrichTimeout}}
}

// Enrich replaces s.Abstract with the extracted article text when the
// source carries a fetchable URL and extraction succeeds; otherwise it
// leaves the abstract untouched. Fetch/extraction failures are non-fatal —
// the caller keeps working with the original abstract.
func (e *Enricher) Enrich(ctx context.Context, s domain.Source) domain.Source {
	if !looksLikeURL(s.ExternalID) {
		return s
	}
	text, err := e.extract(ctx, s.ExternalID)
	if err != nil || strings.TrimSpace(text) == "" {
		return s
	}
	s.Abstract = text
	return s
}

// EnrichAll enriches a batch of sources sequentially; callers wanting
// parallelism should fan this out themselves per source.
func (e *Enricher) EnrichAll(ctx context.Context, sources []domain.Source) []domain.Source {
	out := make([]domain.Source, len(sources))
	for i, s := range sources {
		out[i] = e.Enrich(ctx, s)
	}
	return out
}

func (e *Enricher) extract(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; chaptersynth-enricher/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, enrichMaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	base, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), base)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}

	articleHTML := article.Content
	if strings.TrimSpace(articleHTML) == "" {
		articleHTML = string(body)
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(base.Scheme+"://"+base.Host))
	if err != nil {
		return strings.TrimSpace(article.TextContent), nil
	}
	return strings.TrimSpace(md), nil
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
