package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"chaptersynth/internal/progress"
)

// ConsumerConfig bundles the knobs StartConsumer needs beyond the
// dependencies it's handed directly.
type ConsumerConfig struct {
	Brokers         []string
	GroupID         string
	CommandsTopic   string
	ResponsesTopic  string
	WorkerCount     int
	DedupeTTL       time.Duration
	TaskTimeout     time.Duration
	MaxAttempts     int
	ReaderConfig    *kafka.ReaderConfig // optional override
}

// StartConsumer reads task envelopes from cfg.CommandsTopic and drives them
// through a bounded worker pool, retrying transient failures with backoff
// and publishing to the DLQ once retries are exhausted, committing the
// offset either way (adapted from the teacher's StartKafkaConsumer).
func StartConsumer(
	ctx context.Context,
	cfg ConsumerConfig,
	producer Producer,
	runner Runner,
	store Store,
	dedupe DedupeStore,
	hub *progress.Hub,
) error {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.CommandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.ReaderConfig != nil {
		rc = *cfg.ReaderConfig
		rc.Brokers = cfg.Brokers
		rc.GroupID = cfg.GroupID
		rc.Topic = cfg.CommandsTopic
	}
	reader := kafka.NewReader(rc)
	defer func() {
		if err := reader.Close(); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("error closing task reader")
		}
	}()

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	locks := newKeyedMutex()
	jobs := make(chan kafka.Message, workerCount*4)

	done := make(chan struct{})
	for i := 0; i < workerCount; i++ {
		go func() {
			defer func() {
				done <- struct{}{}
			}()
			for msg := range jobs {
				attempt := 0
				for {
					attempt++
					err := HandleTaskMessage(ctx, runner, store, dedupe, producer, hub, locks, msg, cfg.ResponsesTopic, cfg.DedupeTTL, cfg.TaskTimeout)
					if err == nil {
						break
					}
					if attempt < maxAttempts && ctx.Err() == nil {
						backoff := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
						log.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("transient task error, retrying")
						sleepCtx, cancel := context.WithTimeout(ctx, backoff)
						<-sleepCtx.Done()
						cancel()
						continue
					}
					log.Ctx(ctx).Error().Err(err).Msg("task retries exhausted, publishing DLQ")
					publishDLQ(ctx, producer, cfg.ResponsesTopic, Result{Status: "error", Error: err.Error()})
					break
				}
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("commit failed")
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Ctx(ctx).Error().Err(err).Msg("fetch error")
				t := time.NewTimer(500 * time.Millisecond)
				select {
				case <-t.C:
				case <-ctx.Done():
					if !t.Stop() {
						<-t.C
					}
					return
				}
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		<-done
	}
	return ctx.Err()
}
