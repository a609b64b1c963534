package queue

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

// gateSummaryConfidence is the fixed confidence assigned to generated
// summaries, which carry no per-item score from the model.
const gateSummaryConfidence = 0.8

// GateOutcome summarizes what the confidence gate did with one result.
type GateOutcome struct {
	Approved        int `json:"approved"`
	Pending         int `json:"pending"`
	Discarded       int `json:"discarded"`
	TimelineEntries int `json:"timeline_entries"`
}

// Stored returns the number of items persisted in any status.
func (o GateOutcome) Stored() int {
	return o.Approved + o.Pending
}

// Gate applies the per-item confidence thresholds and persists what
// survives. Items below the review threshold are discarded, never stored.
type Gate struct {
	store store.Store
	cfg   config.GateConfig
}

// NewGate creates a Gate.
func NewGate(st store.Store, cfg config.GateConfig) *Gate {
	return &Gate{store: st, cfg: cfg}
}

// Apply gates every extracted item of one job result. Approved dates also
// produce timeline entries when the job carries a subject.
func (g *Gate) Apply(ctx context.Context, job *model.ExtractionJob, src *model.Source, result *model.ExtractionResult) (*GateOutcome, error) {
	outcome := &GateOutcome{}

	for _, d := range result.Dates {
		status, keep := g.decide(d.Confidence)
		if !keep {
			outcome.Discarded++
			continue
		}

		parsed, parseErr := model.ParseNormalizedDate(d.Normalized)
		if parseErr != nil {
			// An unverifiable date never auto-approves.
			zap.L().Warn("extracted date failed normalization",
				zap.String("job_id", job.ID),
				zap.String("normalized", d.Normalized),
			)
			status = model.ReviewPending
		}

		if err := g.insert(ctx, outcome, job, model.StoredExtraction{
			Kind:       model.KindDate,
			FieldName:  d.Category,
			RawText:    d.RawText,
			Value:      d.Normalized,
			Confidence: d.Confidence,
			Status:     status,
		}, result); err != nil {
			return outcome, err
		}

		if status == model.ReviewApproved && parsed != nil && job.SubjectID != "" {
			if _, err := g.store.InsertTimelineEntry(ctx, model.TimelineEntry{
				SubjectID:  job.SubjectID,
				Category:   d.Category,
				DateStart:  parsed.DateStart,
				Precision:  parsed.Precision,
				Display:    parsed.Display,
				SortKey:    parsed.SortKey,
				SourceType: job.SourceType,
				SourceRef:  string(job.SourceType) + ":" + job.SourceID,
				Notes:      d.RawText,
			}); err != nil {
				return outcome, eris.Wrap(err, "queue: insert timeline entry")
			}
			outcome.TimelineEntries++
		}
	}

	for _, p := range result.People {
		if err := g.gateEntity(ctx, outcome, job, result, p, model.KindPerson, "person"); err != nil {
			return outcome, err
		}
	}
	for _, o := range result.Organizations {
		if err := g.gateEntity(ctx, outcome, job, result, o, model.KindOrganization, "organization"); err != nil {
			return outcome, err
		}
	}

	if result.Summary != "" {
		status, keep := g.decide(gateSummaryConfidence)
		if keep {
			if err := g.insert(ctx, outcome, job, model.StoredExtraction{
				Kind:       model.KindSummary,
				FieldName:  "summary",
				RawText:    result.Summary,
				Value:      result.Summary,
				Confidence: gateSummaryConfidence,
				Status:     status,
			}, result); err != nil {
				return outcome, err
			}
		} else {
			outcome.Discarded++
		}
	}

	// A good extracted title fills in a source that arrived without one.
	if result.Title != "" && src != nil && src.Title == "" {
		src.Title = result.Title
		if err := g.store.UpsertSource(ctx, *src); err != nil {
			return outcome, eris.Wrap(err, "queue: update source title")
		}
	}

	return outcome, nil
}

func (g *Gate) gateEntity(ctx context.Context, outcome *GateOutcome, job *model.ExtractionJob, result *model.ExtractionResult, e model.ExtractedEntity, kind model.ExtractionKind, defaultField string) error {
	status, keep := g.decide(e.Confidence)
	if !keep {
		outcome.Discarded++
		return nil
	}

	field := e.Role
	if field == "" {
		field = defaultField
	}
	return g.insert(ctx, outcome, job, model.StoredExtraction{
		Kind:       kind,
		FieldName:  field,
		RawText:    e.Context,
		Value:      e.Name,
		Confidence: e.Confidence,
		Status:     status,
	}, result)
}

func (g *Gate) insert(ctx context.Context, outcome *GateOutcome, job *model.ExtractionJob, ex model.StoredExtraction, result *model.ExtractionResult) error {
	ex.SubjectID = job.SubjectID
	ex.SourceType = job.SourceType
	ex.SourceID = job.SourceID
	ex.Provider = result.Provider
	ex.Model = result.Model

	if _, err := g.store.InsertExtraction(ctx, ex); err != nil {
		return eris.Wrap(err, "queue: insert extraction")
	}

	switch ex.Status {
	case model.ReviewApproved:
		outcome.Approved++
	default:
		outcome.Pending++
	}
	return nil
}

// decide maps a confidence to a storage status. keep is false below the
// review threshold.
func (g *Gate) decide(confidence float64) (model.ReviewStatus, bool) {
	switch {
	case confidence >= g.cfg.AutoApprove:
		return model.ReviewApproved, true
	case confidence >= g.cfg.Review:
		return model.ReviewPending, true
	default:
		return "", false
	}
}
