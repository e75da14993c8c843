package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/progress"
	"chaptersynth/internal/store"
)

type fakeTaskSubmitter struct {
	mu      sync.Mutex
	submits []domain.TaskType
}

func (f *fakeTaskSubmitter) Submit(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, taskType)
	return &domain.Task{ID: uuid.New(), Type: taskType, EntityID: entityID, Status: domain.TaskQueued}, nil
}

func newTestServer() (*Server, *store.MemoryStore, *fakeTaskSubmitter) {
	m := store.NewMemoryStore()
	tasks := &fakeTaskSubmitter{}
	return NewServer(m, m, tasks, progress.NewHub()), m, tasks
}

func TestHandleCreateDocumentRejectsShortTopic(t *testing.T) {
	s, _, _ := newTestServer()
	body := bytes.NewBufferString(`{"topic":"ab"}`)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreateDocumentQueuesAndSubmits(t *testing.T) {
	s, m, tasks := newTestServer()
	body := bytes.NewBufferString(`{"topic":"glioblastoma management","document_type":"surgical_disease"}`)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp createDocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "document:"+resp.DocumentID, resp.SubscribeTo)

	id, err := uuid.Parse(resp.DocumentID)
	require.NoError(t, err)
	doc, err := m.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "glioblastoma management", doc.Topic)

	assert.Equal(t, []domain.TaskType{domain.TaskSynthesizeDocument}, tasks.submits)
}

func TestHandleGetDocumentNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/documents/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetDocumentMarkdownRejectsIncompleteDocument(t *testing.T) {
	s, m, _ := newTestServer()
	doc := &domain.Document{ID: uuid.New(), Topic: "lumbar disc herniation", Status: domain.StatusQueued}
	require.NoError(t, m.Save(context.Background(), doc))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/markdown", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetDocumentMarkdownRendersCompletedDocument(t *testing.T) {
	s, m, _ := newTestServer()
	doc := &domain.Document{
		ID:     uuid.New(),
		Topic:  "cervical myelopathy",
		Title:  "Cervical Myelopathy",
		Status: domain.StatusCompleted,
		Sections: []domain.Section{
			{Title: "Introduction", Content: "Cervical myelopathy overview."},
		},
		References: []domain.Reference{
			{Number: 1, Title: "A spine reference", Year: 2020},
		},
	}
	require.NoError(t, m.Save(context.Background(), doc))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+doc.ID.String()+"/markdown", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "# Cervical Myelopathy")
	assert.Contains(t, body, "## Introduction")
	assert.Contains(t, body, "## References")
	assert.Contains(t, body, "A spine reference")
}

func TestHandleCreateBookSavesChaptersAndSubmitsEmbedJobs(t *testing.T) {
	s, m, tasks := newTestServer()
	reqBody := createBookRequest{
		Title:      "Operative Neurosurgery",
		Authors:    []string{"A. Surgeon"},
		SourceType: "textbook",
		Chapters: []createBookChapter{
			{Title: "Approach to the thoracic spine", PageStart: 1, PageEnd: 20, Text: "word word word"},
			{Title: "Postoperative care", PageStart: 21, PageEnd: 30, Text: "more words here"},
		},
	}
	payload, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp createBookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ChapterIDs, 2)

	bookID, err := uuid.Parse(resp.BookID)
	require.NoError(t, err)
	book, err := m.LoadBook(context.Background(), bookID)
	require.NoError(t, err)
	assert.Equal(t, "Operative Neurosurgery", book.Title)

	chapterID, err := uuid.Parse(resp.ChapterIDs[0])
	require.NoError(t, err)
	chapter, err := m.LoadChapter(context.Background(), chapterID)
	require.NoError(t, err)
	assert.Equal(t, 3, chapter.WordCount)

	assert.Equal(t, []domain.TaskType{domain.TaskEmbedChapter, domain.TaskEmbedChapter}, tasks.submits)
}

func TestHandleCreateBookRejectsMissingTitle(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
