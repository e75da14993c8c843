package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chaptersynth/internal/domain"
)

const defaultEvidenceTimeout = 15 * time.Second

// HTTPEvidenceDatabase implements EvidenceDatabase against a PubMed-shaped
// search+fetch HTTP API (search returns a list of ids; fetch resolves ids
// to records). No example repo in the corpus wires a literature-database
// SDK directly, so this talks plain JSON over net/http — see DESIGN.md.
type HTTPEvidenceDatabase struct {
	client  *http.Client
	baseURL string
}

// NewHTTPEvidenceDatabase builds a client against baseURL (e.g. a PubMed
// E-utilities-compatible endpoint).
func NewHTTPEvidenceDatabase(baseURL string) *HTTPEvidenceDatabase {
	return &HTTPEvidenceDatabase{
		client:  &http.Client{Timeout: defaultEvidenceTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type evidenceSearchResponse struct {
	IDs []string `json:"ids"`
}

// Search issues a search query and returns up to m matching record ids.
func (d *HTTPEvidenceDatabase) Search(ctx context.Context, query string, m int) ([]string, error) {
	u := fmt.Sprintf("%s/search?q=%s&limit=%d", d.baseURL, url.QueryEscape(query), m)
	var out evidenceSearchResponse
	if err := d.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("evidence search: %w", err)
	}
	if len(out.IDs) > m {
		out.IDs = out.IDs[:m]
	}
	return out.IDs, nil
}

type evidenceRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Journal  string   `json:"journal"`
	Abstract string   `json:"abstract"`
	URL      string   `json:"url"`
}

type evidenceFetchResponse struct {
	Records []evidenceRecord `json:"records"`
}

// Fetch resolves ids into full Source records.
func (d *HTTPEvidenceDatabase) Fetch(ctx context.Context, ids []string) ([]domain.Source, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	u := fmt.Sprintf("%s/fetch?ids=%s", d.baseURL, url.QueryEscape(strings.Join(ids, ",")))
	var out evidenceFetchResponse
	if err := d.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("evidence fetch: %w", err)
	}
	sources := make([]domain.Source, 0, len(out.Records))
	for _, r := range out.Records {
		sources = append(sources, domain.Source{
			Title:      r.Title,
			Authors:    r.Authors,
			Year:       r.Year,
			Journal:    r.Journal,
			Abstract:   r.Abstract,
			ExternalID: firstNonEmptyEvidence(r.URL, r.ID),
			Type:       domain.SourceExternalDB,
		})
	}
	return sources, nil
}

func (d *HTTPEvidenceDatabase) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status %s", strconv.Itoa(resp.StatusCode))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func firstNonEmptyEvidence(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
