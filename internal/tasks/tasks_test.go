package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/progress"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakeProducer) all() []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Message(nil), p.msgs...)
}

type fakeStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newFakeStore() *fakeStore { return &fakeStore{tasks: make(map[uuid.UUID]*domain.Task)} }

func (s *fakeStore) Create(ctx context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, resultBlob []byte, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	t.Status = status
	t.ResultBlob = resultBlob
	t.Error = errMsg
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("task not found")
	}
	cp := *t
	return &cp, nil
}

type fakeDedupe struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeDedupe() *fakeDedupe { return &fakeDedupe{values: make(map[string]string)} }

func (d *fakeDedupe) Get(ctx context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[key], nil
}

func (d *fakeDedupe) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = value
	return nil
}

type fakeRunner struct {
	err      error
	executed int
}

func (r *fakeRunner) Execute(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (map[string]any, error) {
	r.executed++
	if r.err != nil {
		return nil, r.err
	}
	return map[string]any{"entity_id": entityID.String(), "type": string(taskType)}, nil
}

func TestAdapterSubmitCreatesTaskAndEnqueuesEnvelope(t *testing.T) {
	producer := &fakeProducer{}
	store := newFakeStore()
	adapter := NewAdapter(producer, store, "chapters.commands")

	entityID := uuid.New()
	task, err := adapter.Submit(context.Background(), domain.TaskSynthesizeDocument, entityID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskQueued, task.Status)

	stored, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskSynthesizeDocument, stored.Type)

	msgs := producer.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "chapters.commands", msgs[0].Topic)
	assert.Equal(t, entityID.String(), string(msgs[0].Key))
}

func TestHandleTaskMessageSuccessPath(t *testing.T) {
	producer := &fakeProducer{}
	store := newFakeStore()
	dedupe := newFakeDedupe()
	runner := &fakeRunner{}
	hub := progress.NewHub()
	locks := newKeyedMutex()

	entityID := uuid.New()
	adapter := NewAdapter(producer, store, "chapters.commands")
	task, err := adapter.Submit(context.Background(), domain.TaskEmbedChapter, entityID)
	require.NoError(t, err)

	msg := producer.all()[0]
	err = HandleTaskMessage(context.Background(), runner, store, dedupe, producer, hub, locks, msg, "chapters.responses", time.Hour, time.Second)
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, stored.Status)
	assert.NotEmpty(t, stored.ResultBlob)

	dedupeVal, _ := dedupe.Get(context.Background(), task.ID.String())
	assert.Equal(t, "done", dedupeVal)
}

func TestHandleTaskMessageDedupeHitSkipsExecution(t *testing.T) {
	producer := &fakeProducer{}
	store := newFakeStore()
	dedupe := newFakeDedupe()
	runner := &fakeRunner{}
	hub := progress.NewHub()
	locks := newKeyedMutex()

	entityID := uuid.New()
	adapter := NewAdapter(producer, store, "chapters.commands")
	_, err := adapter.Submit(context.Background(), domain.TaskEmbedChapter, entityID)
	require.NoError(t, err)
	msg := producer.all()[0]

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	require.NoError(t, dedupe.Set(context.Background(), env.TaskID.String(), "done", time.Hour))

	err = HandleTaskMessage(context.Background(), runner, store, dedupe, producer, hub, locks, msg, "chapters.responses", time.Hour, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, runner.executed)
}

func TestHandleTaskMessagePermanentFailurePublishesDLQ(t *testing.T) {
	producer := &fakeProducer{}
	store := newFakeStore()
	dedupe := newFakeDedupe()
	runner := &fakeRunner{err: errkind.New(errkind.InvalidInput, "test", errors.New("bad entity"))}
	hub := progress.NewHub()
	locks := newKeyedMutex()

	entityID := uuid.New()
	adapter := NewAdapter(producer, store, "chapters.commands")
	task, err := adapter.Submit(context.Background(), domain.TaskEmbedChapter, entityID)
	require.NoError(t, err)
	msg := producer.all()[0]

	err = HandleTaskMessage(context.Background(), runner, store, dedupe, producer, hub, locks, msg, "chapters.responses", time.Hour, time.Second)
	require.NoError(t, err) // permanent failures are swallowed so the offset commits

	stored, getErr := store.Get(context.Background(), task.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.TaskFailed, stored.Status)

	var dlqMsg *kafka.Message
	for _, m := range producer.all() {
		if m.Topic == "chapters.responses.dlq" {
			mm := m
			dlqMsg = &mm
		}
	}
	require.NotNil(t, dlqMsg)
}

func TestHandleTaskMessageTransientFailureIsRetried(t *testing.T) {
	producer := &fakeProducer{}
	store := newFakeStore()
	dedupe := newFakeDedupe()
	runner := &fakeRunner{err: errkind.New(errkind.ExternalServiceError, "test", errors.New("timeout talking to provider"))}
	hub := progress.NewHub()
	locks := newKeyedMutex()

	entityID := uuid.New()
	adapter := NewAdapter(producer, store, "chapters.commands")
	_, err := adapter.Submit(context.Background(), domain.TaskEmbedChapter, entityID)
	require.NoError(t, err)
	msg := producer.all()[0]

	err = HandleTaskMessage(context.Background(), runner, store, dedupe, producer, hub, locks, msg, "chapters.responses", time.Hour, time.Second)
	require.Error(t, err)
}
