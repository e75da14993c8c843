package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// execer is the subset of *pgxpool.Pool and pgx.Tx that document writes need,
// letting saveDocumentTx run identically inside SaveCheckpoint's transaction
// or standalone via Save.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Save inserts or updates a Document row, satisfying tasks.DocumentStore.
func (s *Store) Save(ctx context.Context, doc *domain.Document) error {
	return s.saveDocumentTx(ctx, s.pool, doc)
}

func (s *Store) saveDocumentTx(ctx context.Context, tx execer, doc *domain.Document) error {
	stageBlobs, err := json.Marshal(doc.StageBlobs)
	if err != nil {
		return fmt.Errorf("store.save_document: marshal stage_blobs: %w", err)
	}
	sections, err := json.Marshal(doc.Sections)
	if err != nil {
		return fmt.Errorf("store.save_document: marshal sections: %w", err)
	}
	refs, err := json.Marshal(doc.References)
	if err != nil {
		return fmt.Errorf("store.save_document: marshal references: %w", err)
	}
	gapAnalysis := doc.GapAnalysis
	if gapAnalysis == nil {
		gapAnalysis = json.RawMessage("{}")
	}
	factCheck := doc.FactCheck
	if factCheck == nil {
		factCheck = json.RawMessage("{}")
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err = tx.Exec(ctx, `
INSERT INTO documents (
	id, topic, title, document_type, status, current_stage, last_stage_attempted,
	error_message, stage_blobs, sections, doc_references, depth_score, coverage_score,
	currency_score, evidence_score, gap_analysis, fact_check, total_words, version,
	parent_document_id, is_current_version, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
	$20, $21, $22, $23
)
ON CONFLICT (id) DO UPDATE SET
	topic = EXCLUDED.topic,
	title = EXCLUDED.title,
	document_type = EXCLUDED.document_type,
	status = EXCLUDED.status,
	current_stage = EXCLUDED.current_stage,
	last_stage_attempted = EXCLUDED.last_stage_attempted,
	error_message = EXCLUDED.error_message,
	stage_blobs = EXCLUDED.stage_blobs,
	sections = EXCLUDED.sections,
	doc_references = EXCLUDED.doc_references,
	depth_score = EXCLUDED.depth_score,
	coverage_score = EXCLUDED.coverage_score,
	currency_score = EXCLUDED.currency_score,
	evidence_score = EXCLUDED.evidence_score,
	gap_analysis = EXCLUDED.gap_analysis,
	fact_check = EXCLUDED.fact_check,
	total_words = EXCLUDED.total_words,
	version = EXCLUDED.version,
	parent_document_id = EXCLUDED.parent_document_id,
	is_current_version = EXCLUDED.is_current_version,
	updated_at = EXCLUDED.updated_at`,
		doc.ID, doc.Topic, doc.Title, doc.DocumentType, doc.Status, doc.CurrentStage,
		doc.LastStageAttempted, doc.ErrorMessage, stageBlobs, sections, refs,
		doc.DepthScore, doc.CoverageScore, doc.CurrencyScore, doc.EvidenceScore,
		gapAnalysis, factCheck, doc.TotalWords, doc.Version, doc.ParentDocumentID,
		doc.IsCurrentVersion, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store.save_document: %w", err)
	}
	return nil
}

// Load fetches a Document by id, satisfying tasks.DocumentStore.
func (s *Store) Load(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, topic, title, document_type, status, current_stage, last_stage_attempted,
	error_message, stage_blobs, sections, doc_references, depth_score, coverage_score,
	currency_score, evidence_score, gap_analysis, fact_check, total_words, version,
	parent_document_id, is_current_version, created_at, updated_at
FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errkind.New(errkind.UnknownEntity, "store.load_document", fmt.Errorf("document %s not found", id))
		}
		return nil, fmt.Errorf("store.load_document: %w", err)
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var stageBlobs, sections, refs, gapAnalysis, factCheck []byte
	var parentID *uuid.UUID

	err := row.Scan(
		&doc.ID, &doc.Topic, &doc.Title, &doc.DocumentType, &doc.Status, &doc.CurrentStage,
		&doc.LastStageAttempted, &doc.ErrorMessage, &stageBlobs, &sections, &refs,
		&doc.DepthScore, &doc.CoverageScore, &doc.CurrencyScore, &doc.EvidenceScore,
		&gapAnalysis, &factCheck, &doc.TotalWords, &doc.Version, &parentID,
		&doc.IsCurrentVersion, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(stageBlobs) > 0 {
		if err := json.Unmarshal(stageBlobs, &doc.StageBlobs); err != nil {
			return nil, fmt.Errorf("unmarshal stage_blobs: %w", err)
		}
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &doc.Sections); err != nil {
			return nil, fmt.Errorf("unmarshal sections: %w", err)
		}
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &doc.References); err != nil {
			return nil, fmt.Errorf("unmarshal references: %w", err)
		}
	}
	doc.GapAnalysis = gapAnalysis
	doc.FactCheck = factCheck
	doc.ParentDocumentID = parentID

	return &doc, nil
}
