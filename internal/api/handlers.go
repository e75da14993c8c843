package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/progress"
)

const minTopicChars = 3

type createDocumentRequest struct {
	Topic        string              `json:"topic"`
	DocumentType domain.DocumentType `json:"document_type,omitempty"`
}

type createDocumentResponse struct {
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	SubscribeTo string `json:"subscribe_to"`
}

// handleCreateDocument is POST /documents (§6 "Request → synthesis"):
// creates a queued Document row and submits a synthesize_document task,
// returning the topic subscribers should join for progress events.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Topic) < minTopicChars {
		respondError(w, http.StatusBadRequest, errors.New("topic must be at least 3 characters"))
		return
	}

	doc := &domain.Document{
		ID:           uuid.New(),
		Topic:        req.Topic,
		DocumentType: req.DocumentType,
		Status:       domain.StatusQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.documents.Save(ctx, doc); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := s.tasks.Submit(ctx, domain.TaskSynthesizeDocument, doc.ID); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusAccepted, createDocumentResponse{
		DocumentID:  doc.ID.String(),
		Status:      string(domain.StatusQueued),
		SubscribeTo: progress.DocumentTopic(doc.ID.String()),
	})
}

// handleGetDocument is GET /documents/{id} (§6 "Document retrieval").
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := s.documents.Load(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// handleGetDocumentMarkdown is GET /documents/{id}/markdown: renders the
// completed Document as markdown (§6 "only after completed").
func (s *Server) handleGetDocumentMarkdown(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := s.documents.Load(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	if doc.Status != domain.StatusCompleted {
		respondError(w, http.StatusConflict, errors.New("document is not completed"))
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RenderMarkdown(doc)))
}

type createBookChapter struct {
	Title     string `json:"title"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Text      string `json:"text"`
}

type createBookRequest struct {
	Title      string              `json:"title"`
	Authors    []string            `json:"authors"`
	SourceType string              `json:"source_type"`
	Chapters   []createBookChapter `json:"chapters"`
}

type createBookResponse struct {
	BookID     string   `json:"book_id"`
	ChapterIDs []string `json:"chapter_ids"`
}

// handleCreateBook is POST /books (§6 "Ingestion"). PDF byte-level parsing
// and chapter detection are external collaborators (§1 Non-goals); this
// handler accepts already-detected chapter text alongside the book's
// metadata as a JSON body and triggers §4.J's per-chapter pipeline for
// each one submitted. Multipart PDF bytes, were a caller to send them, are
// the external detector's input, not this handler's — storing the raw PDF
// is the blob-storage collaborator's job, also named out of scope.
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}

	book := &domain.Book{
		ID:         uuid.New(),
		Title:      req.Title,
		Authors:    req.Authors,
		SourceType: req.SourceType,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.books.SaveBook(ctx, book); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	chapterIDs := make([]string, 0, len(req.Chapters))
	for _, c := range req.Chapters {
		chapter := &domain.Chapter{
			ID:         uuid.New(),
			BookID:     book.ID,
			Title:      c.Title,
			PageStart:  c.PageStart,
			PageEnd:    c.PageEnd,
			Text:       c.Text,
			WordCount:  wordCount(c.Text),
			SourceType: req.SourceType,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.books.SaveChapter(ctx, chapter); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		if _, err := s.tasks.Submit(ctx, domain.TaskEmbedChapter, chapter.ID); err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		chapterIDs = append(chapterIDs, chapter.ID.String())
	}

	respondJSON(w, http.StatusCreated, createBookResponse{
		BookID:     book.ID.String(),
		ChapterIDs: chapterIDs,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	if errkind.Is(err, errkind.UnknownEntity) {
		return http.StatusNotFound
	}
	if errkind.Is(err, errkind.InvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
