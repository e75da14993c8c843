package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"chaptersynth/internal/domain"
)

// Producer abstracts the Kafka writer behavior the adapter needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Adapter submits background jobs: a full orchestrator run for a Document,
// or a per-Chapter post-ingestion job (§4.I).
type Adapter struct {
	producer      Producer
	store         Store
	commandsTopic string
}

// NewAdapter builds an Adapter writing to commandsTopic via producer and
// recording every submission through store.
func NewAdapter(producer Producer, store Store, commandsTopic string) *Adapter {
	return &Adapter{producer: producer, store: store, commandsTopic: commandsTopic}
}

// Submit creates a Task row and enqueues its envelope, keyed by entityID so
// the broker's partition assignment keeps one entity's jobs in order.
func (a *Adapter) Submit(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (*domain.Task, error) {
	task := &domain.Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    domain.TaskQueued,
		EntityID:  entityID,
		CreatedAt: time.Now(),
	}
	if err := a.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("tasks: create task row: %w", err)
	}

	env := Envelope{TaskID: task.ID, Type: string(taskType), EntityID: entityID}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Topic: a.commandsTopic,
		Key:   []byte(entityID.String()),
		Value: payload,
	}
	if err := a.producer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("tasks: enqueue task %s: %w", task.ID, err)
	}
	return task, nil
}
