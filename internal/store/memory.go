package store

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// MemoryStore is an in-memory implementation of the same ports Store
// satisfies (orchestrator.Checkpointer, tasks.Store, tasks.DocumentStore,
// embedpipeline.ChapterStore), grounded on the teacher's
// memChatStore/newMemoryProjectsStore pairing: one mutex-guarded map set per
// entity, used in package tests in place of a live Postgres/Qdrant pair.
type MemoryStore struct {
	mu          sync.RWMutex
	documents   map[uuid.UUID]domain.Document
	checkpoints map[uuid.UUID]map[int][]byte
	tasks       map[uuid.UUID]domain.Task
	books       map[uuid.UUID]domain.Book
	chapters    map[uuid.UUID]domain.Chapter
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:   make(map[uuid.UUID]domain.Document),
		checkpoints: make(map[uuid.UUID]map[int][]byte),
		tasks:       make(map[uuid.UUID]domain.Task),
		books:       make(map[uuid.UUID]domain.Book),
		chapters:    make(map[uuid.UUID]domain.Chapter),
	}
}

// Save stores a copy of doc, satisfying tasks.DocumentStore.
func (m *MemoryStore) Save(ctx context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	m.documents[doc.ID] = *doc
	return nil
}

// Load returns a copy of the stored Document, satisfying tasks.DocumentStore.
func (m *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, errkind.New(errkind.UnknownEntity, "memory_store.load_document", errNotFound("document", id))
	}
	return &doc, nil
}

// SaveCheckpoint records stage's output blob and the Document's advanced
// state, satisfying orchestrator.Checkpointer.
func (m *MemoryStore) SaveCheckpoint(ctx context.Context, doc *domain.Document, stage int, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoints[doc.ID] == nil {
		m.checkpoints[doc.ID] = make(map[int][]byte)
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.checkpoints[doc.ID][stage] = cp

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	m.documents[doc.ID] = *doc
	return nil
}

// Create inserts task, satisfying tasks.Store.
func (m *MemoryStore) Create(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	m.tasks[task.ID] = *task
	return nil
}

// UpdateStatus transitions a Task's status, satisfying tasks.Store.
func (m *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, resultBlob []byte, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return errkind.New(errkind.UnknownEntity, "memory_store.update_task_status", errNotFound("task", id))
	}
	now := time.Now().UTC()
	task.Status = status
	task.Error = errMsg
	if len(resultBlob) > 0 {
		task.ResultBlob = resultBlob
	}
	switch status {
	case domain.TaskProcessing:
		task.StartedAt = &now
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled:
		task.CompletedAt = &now
	}
	m.tasks[id] = task
	return nil
}

// Get returns a copy of the stored Task, satisfying tasks.Store.
func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, errkind.New(errkind.UnknownEntity, "memory_store.get_task", errNotFound("task", id))
	}
	return &task, nil
}

// SaveBook stores a copy of book.
func (m *MemoryStore) SaveBook(ctx context.Context, book *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = *book
	return nil
}

// LoadBook returns a copy of the stored Book.
func (m *MemoryStore) LoadBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	book, ok := m.books[id]
	if !ok {
		return nil, errkind.New(errkind.UnknownEntity, "memory_store.load_book", errNotFound("book", id))
	}
	return &book, nil
}

// SaveChapter stores a copy of chapter, satisfying embedpipeline.ChapterStore.
func (m *MemoryStore) SaveChapter(ctx context.Context, chapter *domain.Chapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = now
	m.chapters[chapter.ID] = *chapter
	return nil
}

// LoadChapter returns a copy of the stored Chapter, satisfying
// embedpipeline.ChapterStore.
func (m *MemoryStore) LoadChapter(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chapter, ok := m.chapters[id]
	if !ok {
		return nil, errkind.New(errkind.UnknownEntity, "memory_store.load_chapter", errNotFound("chapter", id))
	}
	return &chapter, nil
}

// FindSimilar does a brute-force cosine-similarity scan over every stored
// Chapter, satisfying embedpipeline.ChapterStore. Fine for tests and small
// corpora; Store's Qdrant-backed FindSimilar is what production runs.
func (m *MemoryStore) FindSimilar(ctx context.Context, embedding []float32, threshold float64, excludeID uuid.UUID) ([]domain.Chapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Chapter
	for id, chapter := range m.chapters {
		if id == excludeID || len(chapter.Embedding) == 0 {
			continue
		}
		if cosineSimilarity(embedding, chapter.Embedding) >= threshold {
			out = append(out, chapter)
		}
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type notFoundError struct {
	kind string
	id   uuid.UUID
}

func (e notFoundError) Error() string {
	return e.kind + " " + e.id.String() + " not found"
}

func errNotFound(kind string, id uuid.UUID) error {
	return notFoundError{kind: kind, id: id}
}
