package embedpipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
)

// DedupeChapter implements §4.J step (v): find existing chapters with
// cosine similarity above duplicateSimilarityThreshold, group them, and
// flag every non-winning version as a duplicate of the highest-scoring one.
func (p *Pipeline) DedupeChapter(ctx context.Context, chapterID uuid.UUID) (map[string]any, error) {
	chapter, err := p.Store.LoadChapter(ctx, chapterID)
	if err != nil {
		return nil, errkind.New(errkind.UnknownEntity, "embedpipeline.dedupe_chapter", err)
	}

	if chapter.DuplicateGroupID != "" {
		return map[string]any{"status": "already_processed", "chapter_id": chapterID.String(), "duplicate_group_id": chapter.DuplicateGroupID}, nil
	}
	if len(chapter.Embedding) == 0 {
		return map[string]any{"status": "skipped", "reason": "no_embedding", "chapter_id": chapterID.String()}, nil
	}

	similar, err := p.Store.FindSimilar(ctx, chapter.Embedding, duplicateSimilarityThreshold, chapterID)
	if err != nil {
		return nil, fmt.Errorf("embedpipeline.dedupe_chapter: find similar: %w", err)
	}
	if len(similar) == 0 {
		return map[string]any{"status": "unique", "chapter_id": chapterID.String(), "duplicates_found": 0}, nil
	}

	allVersions := append([]domain.Chapter{*chapter}, similar...)
	sort.SliceStable(allVersions, func(i, j int) bool {
		return preferenceScore(allVersions[i]) > preferenceScore(allVersions[j])
	})

	groupID := uuid.New().String()
	preferred := allVersions[0]

	for i := range allVersions {
		v := &allVersions[i]
		v.DuplicateGroupID = groupID
		v.PreferenceScore = preferenceScore(*v)
		if v.ID == preferred.ID {
			v.IsDuplicate = false
			v.DuplicateOfID = uuid.Nil
		} else {
			v.IsDuplicate = true
			v.DuplicateOfID = preferred.ID
		}
		if err := p.Store.SaveChapter(ctx, v); err != nil {
			return nil, fmt.Errorf("embedpipeline.dedupe_chapter: save %s: %w", v.ID, err)
		}
	}

	return map[string]any{
		"status":              "duplicates_found",
		"chapter_id":          chapterID.String(),
		"duplicate_group_id":  groupID,
		"duplicates_found":    len(similar),
		"preferred_chapter_id": preferred.ID.String(),
		"is_preferred":        chapter.ID == preferred.ID,
	}, nil
}
