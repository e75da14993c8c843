package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads defaults, then an optional YAML file at path (if it exists),
// then environment variable overrides, then validates the closed
// enumerations (§6) before returning — matching original_source's
// config_validator.py "fail fast on an unknown enum value" behavior
// (SPEC_FULL "Config validation at startup").
func Load(path string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Defaults()

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); v != "" {
		cfg.Providers.OpenAI.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")); v != "" {
		cfg.Providers.Anthropic.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		cfg.Providers.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_MODEL")); v != "" {
		cfg.Providers.Google.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_ADDR")); v != "" {
		cfg.Qdrant.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = v
	}
	if v := strings.TrimSpace(os.Getenv("DEDUP_STRATEGY")); v != "" {
		cfg.DedupStrategy = DedupStrategy(v)
	}
	if v := strings.TrimSpace(os.Getenv("EXTERNAL_RESEARCH_STRATEGY")); v != "" {
		cfg.ExternalResearchStrategy = ExternalResearchStrategy(v)
	}
	if v := strings.TrimSpace(os.Getenv("SECTION_GENERATION_BATCH_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SectionGenerationBatchSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_PATH")); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("EVIDENCE_DB_URL")); v != "" {
		cfg.EvidenceDatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.OTLP = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Observability.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("DEPLOYMENT_ENVIRONMENT")); v != "" {
		cfg.Observability.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
}

// Validate fails fast on an unrecognized value in one of §6's closed
// enumerations, rather than discovering it mid-run.
func Validate(cfg Config) error {
	switch cfg.DedupStrategy {
	case DedupExact, DedupFuzzy, DedupSemantic:
	default:
		return fmt.Errorf("unknown dedup_strategy %q", cfg.DedupStrategy)
	}
	switch cfg.ExternalResearchStrategy {
	case ResearchEvidenceOnly, ResearchAIOnly, ResearchHybrid:
	default:
		return fmt.Errorf("unknown external_research_strategy %q", cfg.ExternalResearchStrategy)
	}
	if cfg.DedupThreshold < 0 || cfg.DedupThreshold > 1 {
		return fmt.Errorf("dedup_threshold %v out of [0,1]", cfg.DedupThreshold)
	}
	if cfg.AIRelevanceThreshold < 0 || cfg.AIRelevanceThreshold > 1 {
		return fmt.Errorf("ai_relevance_threshold %v out of [0,1]", cfg.AIRelevanceThreshold)
	}
	if cfg.SectionGenerationBatchSize <= 0 {
		return fmt.Errorf("section_generation_batch_size must be positive")
	}
	if cfg.EmbeddingDimensionality <= 0 {
		return fmt.Errorf("embedding_dimensionality must be positive")
	}
	return nil
}
