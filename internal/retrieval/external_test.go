package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
)

type fakeEvidenceDB struct {
	ids     []string
	records []domain.Source
	err     error
}

func (f *fakeEvidenceDB) Search(ctx context.Context, query string, m int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeEvidenceDB) Fetch(ctx context.Context, ids []string) ([]domain.Source, error) {
	return f.records, nil
}

type fakeAISearcher struct {
	sources []domain.Source
	err     error
}

func (f *fakeAISearcher) Search(ctx context.Context, query string) ([]domain.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sources, nil
}

type memCache struct {
	store map[string][]domain.Source
}

func newMemCache() *memCache { return &memCache{store: map[string][]domain.Source{}} }

func (c *memCache) Get(ctx context.Context, key string) ([]domain.Source, bool, error) {
	v, ok := c.store[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key string, sources []domain.Source, ttl time.Duration) error {
	c.store[key] = sources
	return nil
}

func TestExternalRetrieveUnionsBothTracks(t *testing.T) {
	evidence := &fakeEvidenceDB{ids: []string{"1"}, records: []domain.Source{{Title: "evidence-hit", Year: time.Now().Year()}}}
	ai := &fakeAISearcher{sources: []domain.Source{{Title: "ai-hit"}}}

	sources, errs := ExternalRetrieve(context.Background(), evidence, ai, nil, "anterior cruciate ligament repair", ExternalOptions{})
	assert.Empty(t, errs)
	require.Len(t, sources, 2)

	var sawEvidence, sawAI bool
	for _, s := range sources {
		if s.Type == domain.SourceExternalDB {
			sawEvidence = true
		}
		if s.Type == domain.SourceAIResearch {
			sawAI = true
		}
	}
	assert.True(t, sawEvidence)
	assert.True(t, sawAI)
}

func TestExternalRetrieveTrackFailureIsNonFatal(t *testing.T) {
	evidence := &fakeEvidenceDB{err: errors.New("db down")}
	ai := &fakeAISearcher{sources: []domain.Source{{Title: "ai-hit"}}}

	sources, errs := ExternalRetrieve(context.Background(), evidence, ai, nil, "query", ExternalOptions{})
	require.Len(t, errs, 1)
	require.Len(t, sources, 1)
	assert.Equal(t, "ai-hit", sources[0].Title)
}

func TestExternalRetrieveCachesByNormalizedQuery(t *testing.T) {
	evidence := &fakeEvidenceDB{ids: []string{"1"}, records: []domain.Source{{Title: "evidence-hit"}}}
	ai := &fakeAISearcher{sources: nil}
	cache := newMemCache()

	_, errs := ExternalRetrieve(context.Background(), evidence, ai, cache, "  Rotator   Cuff  ", ExternalOptions{})
	assert.Empty(t, errs)
	assert.Len(t, cache.store, 1)

	// A differently-whitespaced but equivalent query should hit the same cache key.
	evidence.err = errors.New("should not be called again")
	sources, errs := ExternalRetrieve(context.Background(), evidence, ai, cache, "rotator cuff", ExternalOptions{})
	assert.Empty(t, errs)
	require.Len(t, sources, 1)
}

func TestExternalRetrieveRecencyFilter(t *testing.T) {
	old := time.Now().Year() - 50
	evidence := &fakeEvidenceDB{ids: []string{"1", "2"}, records: []domain.Source{
		{Title: "recent", Year: time.Now().Year()},
		{Title: "ancient", Year: old},
	}}
	sources, errs := ExternalRetrieve(context.Background(), evidence, nil, nil, "query", ExternalOptions{RecencyYears: 10})
	assert.Empty(t, errs)
	require.Len(t, sources, 1)
	assert.Equal(t, "recent", sources[0].Title)
}
