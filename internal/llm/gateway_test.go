package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/errkind"
)

// fakeBackend is an in-package Backend test double.
type fakeBackend struct {
	id             string
	supportsSchema bool
	textErr        error
	calls          int
	structuredData map[string]any
}

func (f *fakeBackend) ID() string           { return f.id }
func (f *fakeBackend) SupportsSchema() bool { return f.supportsSchema }

func (f *fakeBackend) GenerateText(ctx context.Context, req TextRequest) (TextResult, error) {
	f.calls++
	if f.textErr != nil {
		return TextResult{}, f.textErr
	}
	return TextResult{Text: "ok", ProviderID: f.id, ModelID: "test-model"}, nil
}

func (f *fakeBackend) GenerateStructured(ctx context.Context, req TextRequest) (StructuredResult, error) {
	f.calls++
	if f.textErr != nil {
		return StructuredResult{}, f.textErr
	}
	return StructuredResult{Data: f.structuredData, ProviderID: f.id, ModelID: "test-model"}, nil
}

func (f *fakeBackend) GenerateEmbedding(ctx context.Context, text, model string) (EmbeddingResult, error) {
	return EmbeddingResult{Vector: []float32{0.1, 0.2}, ProviderID: f.id}, nil
}

func (f *fakeBackend) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (ImageResult, error) {
	return ImageResult{Text: "described", ProviderID: f.id}, nil
}

func testGateway(backends ...Backend) *Gateway {
	return NewGateway(backends, WithRoutingTable(RoutingTable{
		TaskContentDrafting: {"a", "b"},
	}), WithCircuitBreakerConfig(2, time.Minute, time.Hour, 1))
}

func TestGatewayFallsBackOnProviderFailure(t *testing.T) {
	a := &fakeBackend{id: "a", textErr: errkind.New(errkind.ExternalServiceError, "test", errors.New("boom"))}
	b := &fakeBackend{id: "b"}
	g := testGateway(a, b)

	result, err := g.GenerateText(context.Background(), TextRequest{Prompt: "hi"}, TaskContentDrafting)
	require.NoError(t, err)
	assert.Equal(t, "b", result.ProviderID)
	assert.GreaterOrEqual(t, a.calls, 1)
}

func TestGatewayExhaustsChainReturnsProviderUnavailable(t *testing.T) {
	failing := errkind.New(errkind.ExternalServiceError, "test", errors.New("down"))
	a := &fakeBackend{id: "a", textErr: failing}
	b := &fakeBackend{id: "b", textErr: failing}
	g := testGateway(a, b)

	_, err := g.GenerateText(context.Background(), TextRequest{Prompt: "hi"}, TaskContentDrafting)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.ProviderUnavailable))
}

func TestGatewaySchemaViolationDoesNotFallBack(t *testing.T) {
	a := &fakeBackend{id: "a", supportsSchema: false, structuredData: map[string]any{"wrong": "shape"}}
	b := &fakeBackend{id: "b"}
	g := testGateway(a, b)

	schema := map[string]any{"type": "object", "required": []string{"title"}}
	_, err := g.GenerateStructured(context.Background(), TextRequest{Prompt: "hi", Schema: schema}, TaskContentDrafting)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.ProviderSchemaViolation))
	assert.Equal(t, 0, b.calls)
}

func TestGatewayCircuitBreakerSkipsOpenProvider(t *testing.T) {
	failing := errkind.New(errkind.ExternalServiceError, "test", errors.New("down"))
	a := &fakeBackend{id: "a", textErr: failing}
	b := &fakeBackend{id: "b"}
	g := testGateway(a, b)

	for i := 0; i < 3; i++ {
		_, _ = g.GenerateText(context.Background(), TextRequest{Prompt: "hi"}, TaskContentDrafting)
	}
	callsAfterOpen := a.calls

	_, err := g.GenerateText(context.Background(), TextRequest{Prompt: "hi"}, TaskContentDrafting)
	require.NoError(t, err)
	assert.Equal(t, callsAfterOpen, a.calls, "breaker should have skipped provider a once open")
}

func TestGatewayCostAccounting(t *testing.T) {
	a := &fakeBackend{id: "a"}
	g := NewGateway([]Backend{a}, WithRoutingTable(RoutingTable{
		TaskContentDrafting: {"a"},
	}), WithRateTable(RateTable{
		"a/test-model": {InUSDPer1K: 1, OutUSDPer1K: 2},
	}))
	ctx := WithDocumentID(context.Background(), "doc-1")
	_, err := g.GenerateText(ctx, TextRequest{Prompt: "hi"}, TaskContentDrafting)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, g.CostOf("doc-1"), 0.0)
}
