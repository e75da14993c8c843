package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed persistence layer. It satisfies
// orchestrator.Checkpointer, tasks.Store, tasks.DocumentStore and
// embedpipeline.ChapterStore — one wide concrete type implementing several
// narrow ports, matching the teacher's pgProjectsStore/pgChatStore shape.
type Store struct {
	pool    *pgxpool.Pool
	vectors VectorIndex
}

// New wraps an already-open pool. Attach a VectorIndex with WithVectors
// before using chapter similarity search.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates every table this store owns if it does not already exist,
// matching the teacher's per-store Init(ctx) idiom (pgProjectsStore.Init).
func (s *Store) Init(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			topic TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			document_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			current_stage INTEGER NOT NULL DEFAULT 0,
			last_stage_attempted INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			stage_blobs JSONB NOT NULL DEFAULT '{}'::jsonb,
			sections JSONB NOT NULL DEFAULT '[]'::jsonb,
			doc_references JSONB NOT NULL DEFAULT '[]'::jsonb,
			depth_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			coverage_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			evidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			gap_analysis JSONB NOT NULL DEFAULT '{}'::jsonb,
			fact_check JSONB NOT NULL DEFAULT '{}'::jsonb,
			total_words INTEGER NOT NULL DEFAULT 0,
			version TEXT NOT NULL DEFAULT '',
			parent_document_id UUID,
			is_current_version BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_topic_idx ON documents (topic)`,
		`CREATE INDEX IF NOT EXISTS documents_parent_idx ON documents (parent_document_id)`,

		`CREATE TABLE IF NOT EXISTS checkpoints (
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			stage INTEGER NOT NULL,
			output JSONB NOT NULL,
			written_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (document_id, stage)
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			current_step TEXT NOT NULL DEFAULT '',
			total_steps INTEGER NOT NULL DEFAULT 0,
			entity_id UUID NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			result_blob JSONB,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_entity_idx ON tasks (entity_id)`,

		`CREATE TABLE IF NOT EXISTS books (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			authors JSONB NOT NULL DEFAULT '[]'::jsonb,
			source_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS chapters (
			id UUID PRIMARY KEY,
			book_id UUID NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			page_start INTEGER NOT NULL DEFAULT 0,
			page_end INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			embedding JSONB,
			embedding_model TEXT NOT NULL DEFAULT '',
			embedded_at TIMESTAMPTZ,
			chunks JSONB NOT NULL DEFAULT '[]'::jsonb,
			is_duplicate BOOLEAN NOT NULL DEFAULT FALSE,
			duplicate_group_id TEXT NOT NULL DEFAULT '',
			duplicate_of_id UUID,
			preference_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			detection_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			year INTEGER NOT NULL DEFAULT 0,
			source_type TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS chapters_book_idx ON chapters (book_id)`,
		`CREATE INDEX IF NOT EXISTS chapters_duplicate_group_idx ON chapters (duplicate_group_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
