package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/progress"
)

// HandleTaskMessage processes one Kafka message carrying an Envelope. It
// returns a non-nil error only for transient failures the caller should
// retry; permanent failures are recorded on the Task row, published to the
// DLQ, and the function returns nil so the offset can be committed (§4.I,
// adapted from the teacher's HandleCommandMessage).
func HandleTaskMessage(
	ctx context.Context,
	runner Runner,
	store Store,
	dedupe DedupeStore,
	producer Producer,
	hub *progress.Hub,
	locks *keyedMutex,
	msg kafka.Message,
	responsesTopic string,
	dedupeTTL time.Duration,
	taskTimeout time.Duration,
) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		publishDLQ(ctx, producer, responsesTopic, Result{Status: "error", Error: fmt.Sprintf("malformed task envelope: %v", err)})
		return nil
	}

	if prev, err := dedupe.Get(ctx, env.TaskID.String()); err != nil {
		return fmt.Errorf("tasks: dedupe get failed: %w", err)
	} else if prev != "" {
		log.Ctx(ctx).Info().Str("task_id", env.TaskID.String()).Msg("task dedupe hit, skipping")
		return nil
	}

	lock := locks.lockFor(env.EntityID.String())
	lock.Lock()
	defer lock.Unlock()

	if err := store.UpdateStatus(ctx, env.TaskID, domain.TaskProcessing, nil, ""); err != nil {
		return fmt.Errorf("tasks: mark processing failed: %w", err)
	}
	hub.Progress(progress.TaskTopic(env.TaskID.String()), progress.ProgressPayload{Message: "processing"})

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if taskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, taskTimeout)
	}
	defer cancel()

	result, err := runner.Execute(runCtx, domain.TaskType(env.Type), env.EntityID)
	if err != nil {
		if isTransient(err) {
			return fmt.Errorf("tasks: transient execute error (task=%s): %w", env.TaskID, err)
		}

		_ = store.UpdateStatus(ctx, env.TaskID, domain.TaskFailed, nil, err.Error())
		hub.Failed(progress.TaskTopic(env.TaskID.String()), progress.FailedPayload{ErrorKind: string(kindOf(err)), Details: map[string]any{"message": err.Error()}})
		publishDLQ(ctx, producer, responsesTopic, Result{TaskID: env.TaskID, Status: "error", Error: err.Error()})
		return nil
	}

	blob, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Errorf("tasks: marshal result (task=%s): %w", env.TaskID, marshalErr)
	}

	if err := store.UpdateStatus(ctx, env.TaskID, domain.TaskCompleted, blob, ""); err != nil {
		return fmt.Errorf("tasks: mark completed failed (task=%s): %w", env.TaskID, err)
	}
	hub.Completed(progress.TaskTopic(env.TaskID.String()), result)

	if err := dedupe.Set(ctx, env.TaskID.String(), "done", dedupeTTL); err != nil {
		return fmt.Errorf("tasks: dedupe set failed (task=%s): %w", env.TaskID, err)
	}

	resp := Result{TaskID: env.TaskID, Status: "success", Data: result}
	payload, _ := json.Marshal(resp)
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: responsesTopic, Key: []byte(env.EntityID.String()), Value: payload}); err != nil {
		return fmt.Errorf("tasks: publish result failed (task=%s): %w", env.TaskID, err)
	}

	log.Ctx(ctx).Info().Str("task_id", env.TaskID.String()).Str("type", env.Type).Msg("task processed")
	return nil
}

func publishDLQ(ctx context.Context, producer Producer, responsesTopic string, result Result) {
	payload, _ := json.Marshal(result)
	dlqTopic := dlqTopicFor(responsesTopic)
	if err := producer.WriteMessages(ctx, kafka.Message{Topic: dlqTopic, Key: []byte(result.TaskID.String()), Value: payload}); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("task_id", result.TaskID.String()).Msg("failed to publish task DLQ")
	}
}

func dlqTopicFor(topic string) string {
	t := strings.TrimSpace(topic)
	if t == "" {
		return "tasks.dlq"
	}
	if strings.HasSuffix(t, ".dlq") {
		return t
	}
	return t + ".dlq"
}

// isTransient performs the same error-text heuristic as the teacher's
// isTransientError, plus an errkind.Transient check for wrapped errors that
// already carry a structured kind.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var kindErr *errkind.Error
	if errors.As(err, &kindErr) {
		return errkind.Transient(kindErr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "temporary") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "transient") ||
		strings.Contains(s, "too many requests")
}

func kindOf(err error) errkind.Kind {
	var e *errkind.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return errkind.ExternalServiceError
}
