// Package platform assembles the synthesis platform's concrete
// dependencies from config.Config, grounded on the teacher's
// databases.NewManager factory idiom (internal/persistence/databases):
// one function opens every backend connection, wires the narrow ports
// each higher-level package depends on, and hands back a single bundle
// plus a cleanup function cmd/ entrypoints defer.
package platform

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"chaptersynth/internal/config"
	"chaptersynth/internal/embedpipeline"
	"chaptersynth/internal/llm"
	"chaptersynth/internal/llm/anthropic"
	"chaptersynth/internal/llm/google"
	"chaptersynth/internal/llm/openai"
	"chaptersynth/internal/observability"
	"chaptersynth/internal/orchestrator"
	"chaptersynth/internal/progress"
	"chaptersynth/internal/retrieval"
	"chaptersynth/internal/store"
	"chaptersynth/internal/tasks"
)

// Dependencies bundles every concrete backend connection and wired
// component cmd/api and cmd/worker assemble their entrypoint from.
type Dependencies struct {
	Store        *store.Store
	Gateway      *llm.Gateway
	Hub          *progress.Hub
	Producer     *kafka.Writer
	TaskAdapter  *tasks.Adapter
	Orchestrator *orchestrator.Orchestrator
	Pipeline     *embedpipeline.Pipeline
	Dedupe       *tasks.RedisDedupeStore
	Brokers      []string
}

// Build opens every configured backend and wires the components cmd/
// entrypoints need. The returned cleanup func closes everything opened
// here, in reverse order, regardless of which step failed.
func Build(ctx context.Context, cfg config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := store.OpenPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, cleanup, fmt.Errorf("platform: open postgres pool: %w", err)
	}
	closers = append(closers, pool.Close)

	st := store.New(pool)
	if err := st.Init(ctx); err != nil {
		cleanup()
		return nil, cleanup, fmt.Errorf("platform: init schema: %w", err)
	}

	if cfg.Qdrant.Addr != "" {
		host, port, err := splitHostPort(cfg.Qdrant.Addr)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("platform: parse qdrant addr: %w", err)
		}
		vectors, err := store.NewQdrantIndex(host, port, cfg.Qdrant.Collection, cfg.EmbeddingDimensionality)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("platform: init qdrant index: %w", err)
		}
		st.WithVectors(vectors)
	}

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 30 * time.Second})

	backends := buildBackends(cfg, httpClient)
	if len(backends) == 0 {
		cleanup()
		return nil, cleanup, fmt.Errorf("platform: no AI backend configured")
	}
	gatewayOpts := []llm.Option{
		llm.WithCircuitBreakerConfig(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.Window,
			cfg.CircuitBreaker.Cooldown,
			cfg.CircuitBreaker.HalfOpenProbes,
		),
	}
	if cfg.ClickHouse.Enabled {
		costSink, err := llm.NewClickHouseCostSink(ctx, cfg.ClickHouse.DSN, "")
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("platform: init clickhouse cost sink: %w", err)
		}
		if costSink != nil {
			closers = append(closers, func() { _ = costSink.Close() })
			gatewayOpts = append(gatewayOpts, llm.WithCostSink(costSink))
		}
	}
	gateway := llm.NewGateway(backends, gatewayOpts...)

	var cache retrieval.QueryCache
	if cfg.Redis.Addr != "" {
		redisCache, err := retrieval.NewRedisQueryCache(cfg.Redis.Addr)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("platform: init redis query cache: %w", err)
		}
		closers = append(closers, func() { _ = redisCache.Close() })
		cache = redisCache
	}

	var evidence retrieval.EvidenceDatabase
	if cfg.EvidenceDatabaseURL != "" {
		evidence = retrieval.NewHTTPEvidenceDatabase(cfg.EvidenceDatabaseURL)
	}

	hub := progress.NewHub()

	brokers := splitBrokers(cfg.Kafka.Brokers)
	if len(brokers) == 0 {
		cleanup()
		return nil, cleanup, fmt.Errorf("platform: no kafka brokers configured")
	}
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.LeastBytes{},
	})
	closers = append(closers, func() { _ = producer.Close() })

	taskAdapter := tasks.NewAdapter(producer, st, cfg.Kafka.CommandsTopic)

	var dedupe *tasks.RedisDedupeStore
	if cfg.Redis.Addr != "" {
		d, err := tasks.NewRedisDedupeStore(cfg.Redis.Addr)
		if err != nil {
			cleanup()
			return nil, cleanup, fmt.Errorf("platform: init redis dedupe store: %w", err)
		}
		closers = append(closers, func() { _ = d.Close() })
		dedupe = d
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Gateway:      gateway,
		ChapterIndex: store.NewQdrantChapterIndex(st),
		Evidence:     evidence,
		AISearcher:   retrieval.NewGatewayAIGroundedSearcher(gateway),
		Cache:        cache,
		Checkpoints:  st,
		Progress:     hub,
	}, cfg)

	pipeline := embedpipeline.New(st, gateway)

	return &Dependencies{
		Store:        st,
		Gateway:      gateway,
		Hub:          hub,
		Producer:     producer,
		TaskAdapter:  taskAdapter,
		Orchestrator: orch,
		Pipeline:     pipeline,
		Dedupe:       dedupe,
		Brokers:      brokers,
	}, cleanup, nil
}

func buildBackends(cfg config.Config, httpClient *http.Client) []llm.Backend {
	var backends []llm.Backend
	rates := llm.RateTable{}

	if strings.TrimSpace(cfg.Providers.OpenAI.APIKey) != "" {
		client := observability.WithHeaders(shallowCloneClient(httpClient), cfg.Providers.OpenAI.ExtraHeaders)
		backends = append(backends, openai.New(cfg.Providers.OpenAI, client, rates))
	}
	if strings.TrimSpace(cfg.Providers.Anthropic.APIKey) != "" {
		client := observability.WithHeaders(shallowCloneClient(httpClient), cfg.Providers.Anthropic.ExtraHeaders)
		backends = append(backends, anthropic.New(cfg.Providers.Anthropic, client, rates))
	}
	if strings.TrimSpace(cfg.Providers.Google.APIKey) != "" {
		client := observability.WithHeaders(shallowCloneClient(httpClient), cfg.Providers.Google.ExtraHeaders)
		if backend, err := google.New(cfg.Providers.Google, client, rates); err == nil {
			backends = append(backends, backend)
		}
	}
	return backends
}

// shallowCloneClient copies base so per-provider header wrapping doesn't
// mutate the shared instrumented transport other backends also use.
func shallowCloneClient(base *http.Client) *http.Client {
	clone := *base
	return &clone
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
