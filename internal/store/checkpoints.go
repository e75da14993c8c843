package store

import (
	"context"
	"fmt"

	"chaptersynth/internal/domain"
)

// SaveCheckpoint persists stage N's output blob and the Document's advanced
// state in a single transaction, satisfying orchestrator.Checkpointer and
// enforcing the "stage N+1 begins only after N's checkpoint commits"
// ordering invariant (§3, §4.H) at the storage boundary.
func (s *Store) SaveCheckpoint(ctx context.Context, doc *domain.Document, stage int, blob []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store.save_checkpoint: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO checkpoints (document_id, stage, output)
VALUES ($1, $2, $3)
ON CONFLICT (document_id, stage) DO UPDATE SET output = EXCLUDED.output, written_at = NOW()`,
		doc.ID, stage, blob); err != nil {
		return fmt.Errorf("store.save_checkpoint: insert checkpoint: %w", err)
	}

	if err := s.saveDocumentTx(ctx, tx, doc); err != nil {
		return fmt.Errorf("store.save_checkpoint: save document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store.save_checkpoint: commit: %w", err)
	}
	return nil
}
