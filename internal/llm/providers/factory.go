// Package providers wires the concrete openai/anthropic/google backends
// into an *llm.Gateway from a loaded config.Config.
package providers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"chaptersynth/internal/config"
	"chaptersynth/internal/llm"
	"chaptersynth/internal/llm/anthropic"
	"chaptersynth/internal/llm/google"
	"chaptersynth/internal/llm/openai"
)

// NewGateway constructs every backend with a non-empty API key and returns a
// Gateway registered over them. A backend with no API key configured is
// simply omitted — the routing table's fallback chains skip unregistered
// providers (internal/llm.Gateway.dispatch).
func NewGateway(cfg config.Config, rates llm.RateTable, costSink llm.CostSink) *llm.Gateway {
	httpClient := &http.Client{}

	var backends []llm.Backend

	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) != "" {
		backends = append(backends, openai.New(cfg.Providers.OpenAI, httpClient, rates))
	}
	if strings.TrimSpace(cfg.Providers.Anthropic.APIKey) != "" {
		backends = append(backends, anthropic.New(cfg.Providers.Anthropic, httpClient, rates))
	}
	if strings.TrimSpace(cfg.Providers.Google.APIKey) != "" {
		googleBackend, err := google.New(cfg.Providers.Google, httpClient, rates)
		if err != nil {
			log.Error().Err(err).Msg("google backend init failed, continuing without it")
		} else {
			backends = append(backends, googleBackend)
		}
	}

	opts := []llm.Option{
		llm.WithRateTable(rates),
		llm.WithCircuitBreakerConfig(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.Window,
			cfg.CircuitBreaker.Cooldown,
			cfg.CircuitBreaker.HalfOpenProbes,
		),
	}
	if costSink != nil {
		opts = append(opts, llm.WithCostSink(costSink))
	}
	return llm.NewGateway(backends, opts...)
}
