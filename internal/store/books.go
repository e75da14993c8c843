package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// SaveBook inserts or updates a Book row.
func (s *Store) SaveBook(ctx context.Context, book *domain.Book) error {
	authors, err := json.Marshal(book.Authors)
	if err != nil {
		return fmt.Errorf("store.save_book: marshal authors: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO books (id, title, authors, source_type, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	authors = EXCLUDED.authors,
	source_type = EXCLUDED.source_type`,
		book.ID, book.Title, authors, book.SourceType, book.CreatedAt)
	if err != nil {
		return fmt.Errorf("store.save_book: %w", err)
	}
	return nil
}

// LoadBook fetches a Book by id.
func (s *Store) LoadBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, title, authors, source_type, created_at FROM books WHERE id = $1`, id)

	var book domain.Book
	var authors []byte
	err := row.Scan(&book.ID, &book.Title, &authors, &book.SourceType, &book.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errkind.New(errkind.UnknownEntity, "store.load_book", fmt.Errorf("book %s not found", id))
		}
		return nil, fmt.Errorf("store.load_book: %w", err)
	}
	if len(authors) > 0 {
		if err := json.Unmarshal(authors, &book.Authors); err != nil {
			return nil, fmt.Errorf("store.load_book: unmarshal authors: %w", err)
		}
	}
	return &book, nil
}

// ChaptersByBook returns every Chapter belonging to book, ordered by page
// start, for book-level re-assembly after dedup/embedding.
func (s *Store) ChaptersByBook(ctx context.Context, bookID uuid.UUID) ([]domain.Chapter, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, book_id, title, page_start, page_end, text, word_count, embedding,
	embedding_model, embedded_at, chunks, is_duplicate, duplicate_group_id,
	duplicate_of_id, preference_score, detection_confidence, quality_score,
	year, source_type, created_at, updated_at
FROM chapters WHERE book_id = $1 ORDER BY page_start ASC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("store.chapters_by_book: %w", err)
	}
	defer rows.Close()

	var out []domain.Chapter
	for rows.Next() {
		chapter, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("store.chapters_by_book: %w", err)
		}
		out = append(out, *chapter)
	}
	return out, rows.Err()
}
