// Package llm implements the Provider Gateway (spec §4.A): a uniform
// interface over multiple AI backends with per-task routing, hierarchical
// fallback, bounded retry, a per-provider circuit breaker, and cost
// accounting. The Gateway never talks to a provider SDK directly — that's
// the job of the Backend implementations registered with it.
package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chaptersynth/internal/errkind"
)

var tracer = otel.Tracer("chaptersynth/llm")

const (
	retryBaseDelay = time.Second
	maxAttempts    = 3
)

// Gateway dispatches generate_text/generate_structured/generate_embedding/
// analyze_image calls to the provider chain configured for each task tag.
type Gateway struct {
	backends map[string]Backend
	routing  RoutingTable
	breakers *CircuitBreakers
	rates    RateTable
	costs    *CostLedger
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRoutingTable overrides DefaultRoutingTable().
func WithRoutingTable(t RoutingTable) Option { return func(g *Gateway) { g.routing = t } }

// WithRateTable stores per-model pricing on the Gateway. The Gateway does
// not read it: per-call cost is the CostUSD each backend reports.
func WithRateTable(t RateTable) Option { return func(g *Gateway) { g.rates = t } }

// WithCostSink forwards every call's cost record to sink.
func WithCostSink(sink CostSink) Option { return func(g *Gateway) { g.costs = NewCostLedger(sink) } }

// WithCircuitBreakerConfig overrides the default breaker tuning shared by
// every provider's breaker.
func WithCircuitBreakerConfig(threshold int, window, cooldown time.Duration, halfOpenProbes int) Option {
	return func(g *Gateway) { g.breakers = NewCircuitBreakers(threshold, window, cooldown, halfOpenProbes) }
}

// NewGateway builds a Gateway over the given backends, indexed by Backend.ID().
func NewGateway(backends []Backend, opts ...Option) *Gateway {
	idx := make(map[string]Backend, len(backends))
	for _, b := range backends {
		idx[b.ID()] = b
	}
	g := &Gateway{
		backends: idx,
		routing:  DefaultRoutingTable(),
		breakers: NewCircuitBreakers(5, time.Minute, 30*time.Second, 1),
		rates:    RateTable{},
		costs:    NewCostLedger(NoopCostSink{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// documentIDFromContext lets callers attribute cost to a document without
// threading an id through every call signature; orchestrator stages set it
// via WithDocumentID.
type ctxDocumentIDKey struct{}

// WithDocumentID returns a context that attributes subsequent Gateway calls'
// cost to documentID (§4.A "Accumulated cost per document").
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, ctxDocumentIDKey{}, documentID)
}

func documentIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxDocumentIDKey{}).(string)
	return v
}

// GenerateText implements the generate_text operation (§4.A).
func (g *Gateway) GenerateText(ctx context.Context, req TextRequest, task TaskTag) (TextResult, error) {
	var result TextResult
	err := g.dispatch(ctx, task, func(ctx context.Context, b Backend) error {
		r, err := b.GenerateText(ctx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err == nil {
		g.costs.Add(documentIDFrom(ctx), result.ProviderID, result.ModelID, result.InputTokens, result.OutputTokens, result.CostUSD)
	}
	return result, err
}

// GenerateStructured implements generate_structured (§4.A). When the
// backend lacks native schema enforcement, the Gateway validates the
// returned data itself and fails (without a further retry against the same
// backend attempt) rather than returning best-effort parse output.
func (g *Gateway) GenerateStructured(ctx context.Context, req TextRequest, task TaskTag) (StructuredResult, error) {
	var result StructuredResult
	err := g.dispatch(ctx, task, func(ctx context.Context, b Backend) error {
		r, err := b.GenerateStructured(ctx, req)
		if err != nil {
			return err
		}
		if !b.SupportsSchema() {
			if verr := ValidateSchema(req.Schema, r.Data); verr != nil {
				return errkind.New(errkind.ProviderSchemaViolation, "generate_structured", verr)
			}
		}
		result = r
		return nil
	})
	if err == nil {
		g.costs.Add(documentIDFrom(ctx), result.ProviderID, result.ModelID, result.InputTokens, result.OutputTokens, result.CostUSD)
	}
	return result, err
}

// GenerateEmbedding implements generate_embedding (§4.A).
func (g *Gateway) GenerateEmbedding(ctx context.Context, text, modelID string) (EmbeddingResult, error) {
	var result EmbeddingResult
	err := g.dispatch(ctx, TaskEmbedding, func(ctx context.Context, b Backend) error {
		r, err := b.GenerateEmbedding(ctx, text, modelID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err == nil {
		g.costs.Add(documentIDFrom(ctx), result.ProviderID, result.ModelID, 0, 0, result.CostUSD)
	}
	return result, err
}

// AnalyzeImage implements analyze_image with fallback across vision-capable
// providers (§4.A).
func (g *Gateway) AnalyzeImage(ctx context.Context, image []byte, prompt string, maxTokens int) (ImageResult, error) {
	var result ImageResult
	err := g.dispatch(ctx, TaskVision, func(ctx context.Context, b Backend) error {
		r, err := b.AnalyzeImage(ctx, image, prompt, maxTokens)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err == nil {
		g.costs.Add(documentIDFrom(ctx), result.ProviderID, result.ModelID, 0, 0, result.CostUSD)
	}
	return result, err
}

// CostOf returns the accumulated cost attributed to a document id.
func (g *Gateway) CostOf(documentID string) float64 { return g.costs.Total(documentID) }

// dispatch walks the task's fallback chain, applying the circuit breaker and
// bounded retry per provider, until one succeeds or the chain is exhausted.
func (g *Gateway) dispatch(ctx context.Context, task TaskTag, call func(ctx context.Context, b Backend) error) error {
	chain := g.routing.Chain(task)
	var lastErr error
	for _, providerID := range chain {
		backend, ok := g.backends[providerID]
		if !ok {
			continue
		}
		breaker := g.breakers.For(providerID)
		if !breaker.Allow() {
			log.Ctx(ctx).Warn().Str("provider", providerID).Str("task", string(task)).Msg("circuit open, skipping to fallback")
			continue
		}

		err := g.callProvider(ctx, task, providerID, func(ctx context.Context) error { return call(ctx, backend) })
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}

		if errkind.Is(err, errkind.ProviderSchemaViolation) || errkind.Is(err, errkind.InvalidInput) {
			// Non-transient: no point retrying against the same or a
			// different provider for a bad schema/input.
			return err
		}

		breaker.RecordFailure()
		lastErr = err
		log.Ctx(ctx).Warn().Err(err).Str("provider", providerID).Str("task", string(task)).Msg("provider call failed, trying fallback")
	}
	if lastErr == nil {
		lastErr = errors.New("no provider configured for task")
	}
	return errkind.New(errkind.ProviderUnavailable, "dispatch:"+string(task), lastErr)
}

// callProvider spans one provider's attempt (including its internal
// retries) so a trace backend shows each fallback-chain hop as its own
// child span under the dispatching task, rather than one opaque dispatch.
func (g *Gateway) callProvider(ctx context.Context, task TaskTag, providerID string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "llm.dispatch."+string(task)+"."+providerID,
		trace.WithAttributes(
			attribute.String("llm.task", string(task)),
			attribute.String("llm.provider", providerID),
		),
	)
	defer span.End()

	err := callWithRetry(ctx, func() error { return fn(ctx) })
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// callWithRetry retries transient errors with bounded exponential backoff
// (base 1s, max 3 attempts per provider, §4.A). Non-transient errors fail
// fast.
func callWithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errkind.Is(err, errkind.ProviderSchemaViolation) || errkind.Is(err, errkind.InvalidInput) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := time.Duration(math.Pow(2, float64(attempt))) * retryBaseDelay
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
