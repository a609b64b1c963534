package queue

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/extract"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
	"github.com/archivist-labs/chronicle/internal/store"
)

// Preprocessor yields annotation hints for a source text. It never fails;
// degraded results are still usable.
type Preprocessor interface {
	Preprocess(ctx context.Context, text, articleDate string) *model.PreprocessingResult
}

// ConflictDetector runs post-gate conflict detection for a subject.
type ConflictDetector interface {
	DetectSubject(ctx context.Context, subjectID string) ([]model.FactConflict, error)
}

// Processor executes one claimed job end to end: source lookup,
// preprocessing, extraction, gating, and conflict detection.
type Processor struct {
	store         store.Store
	pre           Preprocessor
	provider      extract.Provider
	gate          *Gate
	detector      ConflictDetector
	minTextLength int
}

// NewProcessor wires a Processor. detector may be nil to skip detection.
func NewProcessor(st store.Store, pre Preprocessor, provider extract.Provider, gate *Gate, detector ConflictDetector, minTextLength int) *Processor {
	return &Processor{
		store:         st,
		pre:           pre,
		provider:      provider,
		gate:          gate,
		detector:      detector,
		minTextLength: minTextLength,
	}
}

// jobPayload is what gets persisted as the completed job's result.
type jobPayload struct {
	Result              *model.ExtractionResult `json:"result"`
	AggregateConfidence float64                 `json:"aggregate_confidence"`
	Gate                GateOutcome             `json:"gate"`
	Degraded            bool                    `json:"degraded_preprocessing"`
}

// Process runs one job. The returned status is JobCompleted when at least
// one item survived the gate and JobPartial when the provider answered but
// nothing was worth keeping. Missing or too-short source text is a
// permanent failure; provider errors keep their own classification.
func (p *Processor) Process(ctx context.Context, job *model.ExtractionJob) ([]byte, model.JobStatus, error) {
	src, err := p.store.GetSource(ctx, job.SourceType, job.SourceID)
	if err != nil {
		return nil, "", eris.Wrap(err, "queue: load source")
	}
	if src == nil || src.Text == "" {
		return nil, "", resilience.NewPermanentError(eris.Errorf("queue: no source text for %s:%s", job.SourceType, job.SourceID))
	}
	if len(src.Text) < p.minTextLength {
		return nil, "", resilience.NewPermanentError(eris.Errorf("queue: source text below %d chars", p.minTextLength))
	}

	pre := p.pre.Preprocess(ctx, src.Text, src.ArticleDate)

	result, err := p.provider.Extract(ctx, extract.Request{
		Source: src,
		Tasks:  job.Tasks,
		Pre:    pre,
	})
	if err != nil {
		return nil, "", err
	}

	outcome, err := p.gate.Apply(ctx, job, src, result)
	if err != nil {
		return nil, "", err
	}

	if p.detector != nil && job.SubjectID != "" {
		if conflicts, err := p.detector.DetectSubject(ctx, job.SubjectID); err != nil {
			// Detection failures never fail an otherwise-good job.
			zap.L().Warn("conflict detection failed",
				zap.String("job_id", job.ID),
				zap.String("subject_id", job.SubjectID),
				zap.Error(err),
			)
		} else if len(conflicts) > 0 {
			zap.L().Info("conflicts detected after extraction",
				zap.String("subject_id", job.SubjectID),
				zap.Int("count", len(conflicts)),
			)
		}
	}

	payload, err := json.Marshal(jobPayload{
		Result:              result,
		AggregateConfidence: result.AggregateConfidence(),
		Gate:                *outcome,
		Degraded:            pre.Degraded,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "queue: encode job result")
	}

	status := model.JobCompleted
	if outcome.Stored() == 0 {
		status = model.JobPartial
	}
	return payload, status, nil
}
