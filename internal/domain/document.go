// Package domain holds the entities synthesized and consumed by the
// orchestrator: documents, sections, sources, references, books, chapters,
// tasks and checkpoints. Types here carry no persistence or provider logic —
// they are the shared vocabulary between internal/orchestrator and
// internal/store.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the closed set of synthesizable document kinds.
type DocumentType string

const (
	DocumentSurgicalDisease  DocumentType = "surgical_disease"
	DocumentPureAnatomy      DocumentType = "pure_anatomy"
	DocumentSurgicalTechnique DocumentType = "surgical_technique"
)

// GenerationStatus is the orchestrator's stage state machine, projected onto
// the Document row. StageN values are "stage_N" for N in 1..14.
type GenerationStatus string

const (
	StatusQueued    GenerationStatus = "queued"
	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
	StatusCancelled GenerationStatus = "cancelled"
)

// StageStatus returns the GenerationStatus string for stage ordinal n (1..14).
func StageStatus(n int) GenerationStatus {
	return GenerationStatus("stage_" + itoa(n))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Document is the synthesized artifact produced by the orchestrator.
type Document struct {
	ID                 uuid.UUID
	Topic              string
	Title              string // populated by the post-stage-1 title extraction enrichment
	DocumentType       DocumentType
	Status             GenerationStatus
	CurrentStage       int // 0 before stage 1 begins; 1..14 while in progress
	LastStageAttempted int // recorded on failure (§7)
	ErrorMessage       string

	// StageBlobs holds one opaque structured JSON blob per completed stage,
	// keyed by stage ordinal. Stage N's entry must be non-nil before
	// Status advances past stage N (§3 invariant).
	StageBlobs map[int][]byte

	Sections   []Section
	References []Reference

	DepthScore    float64
	CoverageScore float64
	CurrencyScore float64
	EvidenceScore float64

	GapAnalysis json.RawMessage
	FactCheck   json.RawMessage

	TotalWords int

	Version           string
	ParentDocumentID   *uuid.UUID
	IsCurrentVersion   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QualityScores bundles the four [0,1] scores computed in stage 9.
type QualityScores struct {
	Depth    float64
	Coverage float64
	Currency float64
	Evidence float64
}

// Scores returns the document's four quality scores as a bundle.
func (d *Document) Scores() QualityScores {
	return QualityScores{
		Depth:    d.DepthScore,
		Coverage: d.CoverageScore,
		Currency: d.CurrencyScore,
		Evidence: d.EvidenceScore,
	}
}

// SetStageBlob records stage N's output and advances CurrentStage to N,
// enforcing the "stage N+1 begins only after N's checkpoint commits"
// ordering rule at the struct level (the orchestrator is still responsible
// for the actual persistence write).
func (d *Document) SetStageBlob(stage int, blob []byte) {
	if d.StageBlobs == nil {
		d.StageBlobs = make(map[int][]byte)
	}
	d.StageBlobs[stage] = blob
	if stage > d.CurrentStage {
		d.CurrentStage = stage
	}
}

// StageComplete reports whether stage N's output blob has been persisted.
func (d *Document) StageComplete(stage int) bool {
	b, ok := d.StageBlobs[stage]
	return ok && len(b) > 0
}
