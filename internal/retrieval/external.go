package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chaptersynth/internal/domain"
)

const (
	defaultEvidenceM      = 15
	defaultRecencyYears   = 10
	defaultExternalTTL    = 24 * time.Hour
)

// ExternalOptions configures ExternalRetrieve.
type ExternalOptions struct {
	// M is the number of top evidence-track records to fetch (§4.B default 15).
	M int
	// RecencyYears filters evidence-track results to the last N years (0 or
	// less uses the 10-year default).
	RecencyYears int
	// CacheTTL overrides the default 24h cache lifetime.
	CacheTTL time.Duration
}

// ExternalRetrieve runs the evidence-track and AI-grounded-track searches
// in parallel, unions the results tagged by source_type, and caches the
// combined response by normalized query (§4.B). A track failure is returned
// in the error slice and excluded from the union rather than aborting the call.
func ExternalRetrieve(ctx context.Context, evidence EvidenceDatabase, ai AIGroundedSearcher, cache QueryCache, query string, opt ExternalOptions) ([]domain.Source, []error) {
	m := opt.M
	if m <= 0 {
		m = defaultEvidenceM
	}
	recencyYears := opt.RecencyYears
	if recencyYears <= 0 {
		recencyYears = defaultRecencyYears
	}
	ttl := opt.CacheTTL
	if ttl <= 0 {
		ttl = defaultExternalTTL
	}

	cacheKey := normalizeCacheKey(query, m, recencyYears)
	if cache != nil {
		if cached, ok, err := cache.Get(ctx, cacheKey); err == nil && ok {
			return cached, nil
		}
	}

	var evidenceSources, aiSources []domain.Source
	var evidenceErr, aiErr error

	g, gctx := errgroup.WithContext(ctx)
	if evidence != nil {
		g.Go(func() error {
			sources, err := runEvidenceTrack(gctx, evidence, query, m, recencyYears)
			if err != nil {
				evidenceErr = fmt.Errorf("evidence track: %w", err)
				return nil
			}
			evidenceSources = sources
			return nil
		})
	}
	if ai != nil {
		g.Go(func() error {
			sources, err := ai.Search(gctx, query)
			if err != nil {
				aiErr = fmt.Errorf("ai-grounded track: %w", err)
				return nil
			}
			for i := range sources {
				sources[i].Type = domain.SourceAIResearch
			}
			aiSources = sources
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	if evidenceErr != nil {
		errs = append(errs, evidenceErr)
	}
	if aiErr != nil {
		errs = append(errs, aiErr)
	}

	out := make([]domain.Source, 0, len(evidenceSources)+len(aiSources))
	out = append(out, evidenceSources...)
	out = append(out, aiSources...)

	if cache != nil && len(out) > 0 {
		_ = cache.Set(ctx, cacheKey, out, ttl)
	}
	return out, errs
}

func runEvidenceTrack(ctx context.Context, evidence EvidenceDatabase, query string, m, recencyYears int) ([]domain.Source, error) {
	ids, err := evidence.Search(ctx, query, m)
	if err != nil {
		return nil, err
	}
	sources, err := evidence.Fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Year() - recencyYears
	filtered := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		s.Type = domain.SourceExternalDB
		if s.Year == 0 || s.Year >= cutoff {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func normalizeCacheKey(query string, m, recencyYears int) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	normalized = strings.Join(strings.Fields(normalized), " ")
	return fmt.Sprintf("external:%s:m=%d:years=%d", normalized, m, recencyYears)
}
