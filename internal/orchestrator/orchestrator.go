// Package orchestrator implements the Synthesis Orchestrator (spec §4.H): a
// 14-stage sequential state machine that turns a topic into a fully
// synthesized, fact-checked, quality-scored Document. Transitions are
// strictly 1→2→…→14→completed; any stage may fail straight to `failed`.
// Each successful stage persists its output blob via Checkpointer before the
// next stage begins, so a crash mid-run resumes at the last committed stage
// rather than from scratch (grounded on the teacher's
// internal/orchestrator/handler.go: validate input, do the work, commit,
// emit, and surface failures without silently swallowing them).
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chaptersynth/internal/config"
	"chaptersynth/internal/domain"
	"chaptersynth/internal/errkind"
	"chaptersynth/internal/llm"
	"chaptersynth/internal/progress"
	"chaptersynth/internal/retrieval"
)

var tracer = otel.Tracer("chaptersynth/orchestrator")

const totalStages = 14

var stageNames = [totalStages + 1]string{
	1:  "input validation",
	2:  "context building",
	3:  "internal retrieval",
	4:  "external retrieval",
	5:  "planning",
	6:  "section generation",
	7:  "image integration",
	8:  "citation network",
	9:  "quality assurance",
	10: "fact checking",
	11: "formatting",
	12: "review",
	13: "finalization",
	14: "delivery",
}

// Dependencies bundles every port the orchestrator's stages call through.
// Fields besides Gateway may be nil when a stage's optional capability is
// unconfigured (e.g. no AI-grounded external search track).
type Dependencies struct {
	Gateway      *llm.Gateway
	ChapterIndex retrieval.ChapterIndex
	Evidence     retrieval.EvidenceDatabase
	AISearcher   retrieval.AIGroundedSearcher
	Cache        retrieval.QueryCache
	Images       ImageIndex
	Checkpoints  Checkpointer
	Progress     *progress.Hub
}

// Orchestrator drives one Document through the 14-stage pipeline.
type Orchestrator struct {
	deps Dependencies
	cfg  config.Config
}

// New builds an Orchestrator over the given dependencies and configuration.
func New(deps Dependencies, cfg config.Config) *Orchestrator {
	return &Orchestrator{deps: deps, cfg: cfg}
}

// runState carries in-memory intermediate results between stages within one
// Run call. On crash-resume it is rebuilt from persisted stage blobs
// (rehydrate) rather than recomputed, so a resumed run never re-spends
// provider calls for already-completed stages.
type runState struct {
	analysis stage1Output
	context  stage2Output
	internal stage3Output
	external stage4Output
	plan     stage5Output
}

type stageFunc func(ctx context.Context, o *Orchestrator, doc *domain.Document, st *runState) ([]byte, error)

var stageFns = [totalStages + 1]stageFunc{
	1:  (*Orchestrator).runStage1,
	2:  (*Orchestrator).runStage2,
	3:  (*Orchestrator).runStage3,
	4:  (*Orchestrator).runStage4,
	5:  (*Orchestrator).runStage5,
	6:  (*Orchestrator).runStage6,
	7:  (*Orchestrator).runStage7,
	8:  (*Orchestrator).runStage8,
	9:  (*Orchestrator).runStage9,
	10: (*Orchestrator).runStage10,
	11: (*Orchestrator).runStage11,
	12: (*Orchestrator).runStage12,
	13: (*Orchestrator).runStage13,
	14: (*Orchestrator).runStage14,
}

// Run advances doc from its current stage through completion, or until a
// stage fails. Calling Run on a Document whose CurrentStage > 0 resumes
// rather than restarts (§4.H "a crash mid-stage resumes from the last
// persisted checkpoint").
func (o *Orchestrator) Run(ctx context.Context, doc *domain.Document) error {
	topic := progress.DocumentTopic(doc.ID.String())

	st := &runState{}
	if err := o.rehydrate(doc, st); err != nil {
		return errkind.New(errkind.SchemaInvariant, "orchestrator.rehydrate", err)
	}

	for stage := doc.CurrentStage + 1; stage <= totalStages; stage++ {
		o.deps.Progress.Progress(topic, progress.ProgressPayload{
			Stage:   stage,
			Ordinal: stage,
			Total:   totalStages,
			Percent: float64(stage-1) / float64(totalStages),
			Message: "starting " + stageNames[stage],
		})

		blob, err := o.runTracedStage(ctx, stage, doc, st)
		if err != nil {
			doc.Status = domain.StatusFailed
			doc.LastStageAttempted = stage
			doc.ErrorMessage = err.Error()
			o.deps.Progress.Failed(topic, progress.FailedPayload{
				ErrorKind: string(kindOf(err)),
				Details:   map[string]any{"stage": stage, "message": err.Error()},
			})
			return fmt.Errorf("stage %d (%s): %w", stage, stageNames[stage], err)
		}
		if blob == nil {
			blob = []byte("{}")
		}

		doc.SetStageBlob(stage, blob)
		doc.Status = domain.StageStatus(stage)

		if o.deps.Checkpoints != nil {
			if err := o.deps.Checkpoints.SaveCheckpoint(ctx, doc, stage, blob); err != nil {
				return errkind.New(errkind.ExternalServiceError, "orchestrator.checkpoint", err)
			}
		}

		o.deps.Progress.Progress(topic, progress.ProgressPayload{
			Stage:   stage,
			Ordinal: stage,
			Total:   totalStages,
			Percent: float64(stage) / float64(totalStages),
			Message: "completed " + stageNames[stage],
		})
	}

	doc.Status = domain.StatusCompleted
	doc.IsCurrentVersion = true
	o.deps.Progress.Completed(topic, map[string]any{
		"document_id": doc.ID.String(),
		"total_words": doc.TotalWords,
	})
	return nil
}

// runTracedStage wraps one stage's execution in its own span, named after
// the stage so a trace backend shows the 14-stage pipeline as 14 child
// spans under the run rather than one opaque Run call.
func (o *Orchestrator) runTracedStage(ctx context.Context, stage int, doc *domain.Document, st *runState) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.stage."+stageNames[stage],
		trace.WithAttributes(
			attribute.Int("synthesis.stage", stage),
			attribute.String("synthesis.document_id", doc.ID.String()),
		),
	)
	defer span.End()

	blob, err := stageFns[stage](ctx, o, doc, st)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return blob, err
}

func kindOf(err error) errkind.Kind {
	var e *errkind.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return errkind.ExternalServiceError
}
