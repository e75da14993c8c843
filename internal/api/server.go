// Package api implements the HTTP/Transport Surface (spec §6): a thin
// net/http layer over the Synthesis Orchestrator and Chapter Embedding
// Pipeline, grounded on the teacher's internal/httpapi package (a
// Server{service, mux} pair registering Go 1.22+ method-pattern routes on
// an http.ServeMux, no framework).
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/progress"
)

// DocumentRepo is the narrow persistence port the API needs for Documents;
// internal/store provides the concrete implementation.
type DocumentRepo interface {
	Save(ctx context.Context, doc *domain.Document) error
	Load(ctx context.Context, id uuid.UUID) (*domain.Document, error)
}

// BookRepo is the narrow persistence port the API needs for Books and
// their Chapters.
type BookRepo interface {
	SaveBook(ctx context.Context, book *domain.Book) error
	LoadBook(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	SaveChapter(ctx context.Context, chapter *domain.Chapter) error
}

// TaskSubmitter enqueues background work; *tasks.Adapter satisfies this.
type TaskSubmitter interface {
	Submit(ctx context.Context, taskType domain.TaskType, entityID uuid.UUID) (*domain.Task, error)
}

// Server exposes the synthesis platform's HTTP surface.
type Server struct {
	documents DocumentRepo
	books     BookRepo
	tasks     TaskSubmitter
	hub       *progress.Hub
	mux       *http.ServeMux
}

// NewServer creates the HTTP API server wired to its dependencies.
func NewServer(documents DocumentRepo, books BookRepo, tasks TaskSubmitter, hub *progress.Hub) *Server {
	s := &Server{documents: documents, books: books, tasks: tasks, hub: hub, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /documents", s.handleCreateDocument)
	s.mux.HandleFunc("GET /documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("GET /documents/{id}/markdown", s.handleGetDocumentMarkdown)
	s.mux.HandleFunc("GET /documents/{id}/subscribe", s.handleSubscribe)
	s.mux.HandleFunc("POST /books", s.handleCreateBook)
}
