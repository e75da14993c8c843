package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"chaptersynth/internal/config"
	"chaptersynth/internal/observability"
	"chaptersynth/internal/platform"
	"chaptersynth/internal/tasks"
)

const (
	brokerCheckTimeout = 5 * time.Second
	defaultGroupID     = "chaptersynth-worker"
	defaultWorkerCount = 8
	defaultDedupeTTL   = 10 * time.Minute
	defaultTaskTimeout = 5 * time.Minute
	defaultMaxAttempts = 3
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("worker")
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()
	if cfg.Observability.OTLP != "" {
		shutdownOTel, err := observability.InitOTel(baseCtx, cfg.Observability)
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	deps, cleanup, err := platform.Build(baseCtx, cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer cleanup()

	if deps.Dedupe == nil {
		return fmt.Errorf("worker: redis dedupe store is required (set redis.addr)")
	}

	ctxAdmin, cancelAdmin := context.WithTimeout(baseCtx, brokerCheckTimeout)
	defer cancelAdmin()
	if err := tasks.CheckBrokers(ctxAdmin, deps.Brokers, 3*time.Second); err != nil {
		return fmt.Errorf("reach kafka brokers: %w", err)
	}

	responsesTopic := cfg.Kafka.ResponsesTopic
	topics := []kafka.TopicConfig{
		{Topic: cfg.Kafka.CommandsTopic, NumPartitions: 1, ReplicationFactor: 1},
		{Topic: responsesTopic, NumPartitions: 1, ReplicationFactor: 1},
		{Topic: responsesTopic + ".dlq", NumPartitions: 1, ReplicationFactor: 1},
	}
	if err := tasks.EnsureTopics(ctxAdmin, deps.Brokers, topics); err != nil {
		return fmt.Errorf("ensure kafka topics: %w", err)
	}

	runner := &tasks.CompositeRunner{
		Documents:   deps.Store,
		Synthesizer: deps.Orchestrator,
		Chapters:    deps.Pipeline,
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumerCfg := tasks.ConsumerConfig{
		Brokers:        deps.Brokers,
		GroupID:        defaultGroupID,
		CommandsTopic:  cfg.Kafka.CommandsTopic,
		ResponsesTopic: responsesTopic,
		WorkerCount:    defaultWorkerCount,
		DedupeTTL:      defaultDedupeTTL,
		TaskTimeout:    defaultTaskTimeout,
		MaxAttempts:    defaultMaxAttempts,
	}

	log.Info().Strs("brokers", deps.Brokers).Str("group_id", defaultGroupID).Msg("worker: starting consumer")
	return tasks.StartConsumer(ctx, consumerCfg, deps.Producer, runner, deps.Store, deps.Dedupe, deps.Hub)
}
