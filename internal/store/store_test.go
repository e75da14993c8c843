package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

func TestMemoryStoreDocumentRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	doc := &domain.Document{ID: uuid.New(), Topic: "lumbar disc herniation", Status: domain.StatusQueued}
	require.NoError(t, m.Save(ctx, doc))

	loaded, err := m.Load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "lumbar disc herniation", loaded.Topic)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestMemoryStoreLoadMissingDocumentReturnsUnknownEntity(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Load(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.UnknownEntity))
}

func TestMemoryStoreSaveCheckpointAdvancesDocument(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	doc := &domain.Document{ID: uuid.New(), Topic: "cervical myelopathy"}
	doc.SetStageBlob(1, []byte(`{"ok":true}`))

	require.NoError(t, m.SaveCheckpoint(ctx, doc, 1, []byte(`{"ok":true}`)))

	loaded, err := m.Load(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentStage)
	assert.True(t, loaded.StageComplete(1))
}

func TestMemoryStoreTaskLifecycle(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	task := &domain.Task{ID: uuid.New(), Type: domain.TaskSynthesizeDocument, Status: domain.TaskQueued, EntityID: uuid.New()}
	require.NoError(t, m.Create(ctx, task))

	require.NoError(t, m.UpdateStatus(ctx, task.ID, domain.TaskProcessing, nil, ""))
	loaded, err := m.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskProcessing, loaded.Status)
	require.NotNil(t, loaded.StartedAt)

	require.NoError(t, m.UpdateStatus(ctx, task.ID, domain.TaskCompleted, []byte(`{"done":true}`), ""))
	loaded, err = m.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
	assert.Equal(t, `{"done":true}`, string(loaded.ResultBlob))
}

func TestMemoryStoreUpdateStatusUnknownTask(t *testing.T) {
	m := NewMemoryStore()
	err := m.UpdateStatus(context.Background(), uuid.New(), domain.TaskFailed, nil, "boom")
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.UnknownEntity))
}

func TestMemoryStoreChapterRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	bookID := uuid.New()
	chapter := &domain.Chapter{ID: uuid.New(), BookID: bookID, Title: "Approach to the thoracic spine", WordCount: 1200}
	require.NoError(t, m.SaveChapter(ctx, chapter))

	loaded, err := m.LoadChapter(ctx, chapter.ID)
	require.NoError(t, err)
	assert.Equal(t, "Approach to the thoracic spine", loaded.Title)
}

func TestMemoryStoreFindSimilarRespectsThresholdAndExclusion(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	target := uuid.New()
	near := uuid.New()
	far := uuid.New()

	require.NoError(t, m.SaveChapter(ctx, &domain.Chapter{ID: target, Embedding: []float32{1, 0, 0}}))
	require.NoError(t, m.SaveChapter(ctx, &domain.Chapter{ID: near, Embedding: []float32{0.99, 0.01, 0}}))
	require.NoError(t, m.SaveChapter(ctx, &domain.Chapter{ID: far, Embedding: []float32{0, 1, 0}}))

	hits, err := m.FindSimilar(ctx, []float32{1, 0, 0}, 0.9, target)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, near, hits[0].ID)
}

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}
