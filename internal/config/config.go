// Package config loads the closed configuration enumeration from spec §6:
// YAML file plus environment overrides, matching the teacher's
// config.Load() pattern in internal/config/loader.go.
package config

import "time"

// ProviderConfig is shared shape for a single AI backend's credentials and
// limits.
type ProviderConfig struct {
	APIKey       string            `yaml:"api_key"`
	BaseURL      string            `yaml:"base_url,omitempty"`
	Model        string            `yaml:"model"`
	Timeout      time.Duration     `yaml:"timeout"`
	MaxRetries   int               `yaml:"max_retries"`
	RateLimit    int               `yaml:"rate_limit_per_minute"`
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
}

// ProvidersConfig groups every backend the Provider Gateway can register.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Google    ProviderConfig `yaml:"google"`
}

// ObsConfig configures the OpenTelemetry tracing/metrics exporters
// (internal/observability.InitOTel). Empty OTLP disables export entirely;
// the rest of the system runs fine without it (§6, ambient observability).
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
}

// CircuitBreakerConfig tunes §4.A's per-provider breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	Cooldown         time.Duration `yaml:"cooldown"`
	HalfOpenProbes   int           `yaml:"half_open_probes"`
}

// DedupStrategy is the closed set from §6.
type DedupStrategy string

const (
	DedupExact    DedupStrategy = "exact"
	DedupFuzzy    DedupStrategy = "fuzzy"
	DedupSemantic DedupStrategy = "semantic"
)

// ExternalResearchStrategy is the closed set from §6.
type ExternalResearchStrategy string

const (
	ResearchEvidenceOnly ExternalResearchStrategy = "evidence_only"
	ResearchAIOnly       ExternalResearchStrategy = "ai_only"
	ResearchHybrid       ExternalResearchStrategy = "hybrid"
)

// Config is the recognized, closed configuration enumeration from spec §6.
type Config struct {
	Providers      ProvidersConfig      `yaml:"providers"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Observability  ObsConfig            `yaml:"observability"`

	ParallelSectionGeneration  bool    `yaml:"parallel_section_generation"`
	SectionGenerationBatchSize int     `yaml:"section_generation_batch_size"`
	EmbeddingDimensionality    int     `yaml:"embedding_dimensionality"`
	DedupStrategy              DedupStrategy `yaml:"dedup_strategy"`
	DedupThreshold             float64 `yaml:"dedup_threshold"`
	AIRelevanceFilterEnabled   bool    `yaml:"ai_relevance_filter_enabled"`
	AIRelevanceThreshold       float64 `yaml:"ai_relevance_threshold"`
	ExternalResearchStrategy   ExternalResearchStrategy `yaml:"external_research_strategy"`
	ExternalResearchParallel   bool    `yaml:"external_research_parallel"`
	AutoGapAnalysisEnabled     bool    `yaml:"auto_gap_analysis_enabled"`
	HaltOnCriticalGaps         bool    `yaml:"halt_on_critical_gaps"`

	InternalRetrievalParallelism int           `yaml:"internal_retrieval_parallelism"`
	CacheTTL                     time.Duration `yaml:"cache_ttl"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Qdrant struct {
		Addr       string `yaml:"addr"`
		Collection string `yaml:"collection"`
	} `yaml:"qdrant"`
	Kafka struct {
		Brokers        string `yaml:"brokers"`
		CommandsTopic  string `yaml:"commands_topic"`
		ResponsesTopic string `yaml:"responses_topic"`
	} `yaml:"kafka"`
	ClickHouse struct {
		DSN     string `yaml:"dsn"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"clickhouse"`

	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`

	HTTPAddr string `yaml:"http_addr"`

	// EvidenceDatabaseURL is the base URL of the evidence-track external
	// literature search API (§4.B); empty disables that track, leaving the
	// AI-grounded track as the sole external research source.
	EvidenceDatabaseURL string `yaml:"evidence_database_url"`
}

// Defaults returns a new Config holding the spec's documented defaults
// (§4.C threshold 0.85, §4.D threshold 0.75, §5 K1=5, batch=5, §4.B cache
// TTL 24h, §4.A circuit breaker).
func Defaults() Config {
	var c Config
	c.SectionGenerationBatchSize = 5
	c.EmbeddingDimensionality = 1536
	c.DedupStrategy = DedupFuzzy
	c.DedupThreshold = 0.85
	c.AIRelevanceFilterEnabled = true
	c.AIRelevanceThreshold = 0.75
	c.ExternalResearchStrategy = ResearchHybrid
	c.ExternalResearchParallel = true
	c.AutoGapAnalysisEnabled = true
	c.HaltOnCriticalGaps = false
	c.InternalRetrievalParallelism = 5
	c.CacheTTL = 24 * time.Hour
	c.CircuitBreaker = CircuitBreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
	c.ParallelSectionGeneration = true
	c.LogLevel = "info"
	c.HTTPAddr = ":8080"
	c.Observability = ObsConfig{
		ServiceName:    "chaptersynth",
		ServiceVersion: "0.1.0",
		Environment:    "development",
	}
	return c
}
