package conflict

import (
	"context"
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

// SystemResolver is the resolver identity recorded by auto-resolution.
const SystemResolver = "system"

// Judge produces a model-assisted verdict for a conflict. It is satisfied
// by the anthropic-backed judge in this package; a nil Judge disables
// escalation.
type Judge interface {
	Judge(ctx context.Context, c *model.FactConflict) (*model.ResolutionSuggestion, error)
}

// Resolver suggests and applies conflict resolutions.
type Resolver struct {
	store store.Store
	judge Judge
	cfg   config.ConflictConfig
}

// NewResolver creates a Resolver. judge may be nil, in which case only
// rule-based strategies run.
func NewResolver(st store.Store, judge Judge, cfg config.ConflictConfig) *Resolver {
	return &Resolver{store: st, judge: judge, cfg: cfg}
}

// Suggest runs the resolution strategies in order: source authority,
// confidence tie-break, then model-assisted judgment when the rule-based
// confidence falls short of the escalation threshold. A judge failure
// falls back to the rule suggestion with a note.
func (r *Resolver) Suggest(ctx context.Context, c *model.FactConflict) *model.ResolutionSuggestion {
	rule := ruleSuggestion(c)
	if rule.Confidence >= r.cfg.ModelEscalation || r.judge == nil {
		return rule
	}

	verdict, err := r.judge.Judge(ctx, c)
	if err != nil {
		zap.L().Warn("model judgment failed, keeping rule suggestion",
			zap.String("conflict_id", c.ID),
			zap.Error(err),
		)
		rule.Reasoning += " (model judgment unavailable)"
		return rule
	}
	return verdict
}

// ruleSuggestion applies the deterministic strategies. Authority wins when
// tiers differ; equal tiers fall through to the confidence margin; with no
// clear winner the conflict stays with a reviewer.
func ruleSuggestion(c *model.FactConflict) *model.ResolutionSuggestion {
	a, b := c.ClaimA, c.ClaimB

	if a.AuthorityTier != b.AuthorityTier {
		winner, loser := model.ResolutionClaimA, b
		if b.AuthorityTier < a.AuthorityTier {
			winner, loser = model.ResolutionClaimB, a
		}
		distance := math.Abs(float64(a.AuthorityTier - b.AuthorityTier))
		confidence := 0.7 + 0.1*distance
		if confidence > 1.0 {
			confidence = 1.0
		}
		return &model.ResolutionSuggestion{
			Resolution: winner,
			Confidence: confidence,
			Strategy:   "source_authority",
			Reasoning: fmt.Sprintf("tier %d source outranks tier %d source",
				min(a.AuthorityTier, b.AuthorityTier), loser.AuthorityTier),
		}
	}

	margin := a.Confidence - b.Confidence
	if math.Abs(margin) > 0.1 {
		winner := model.ResolutionClaimA
		if margin < 0 {
			winner = model.ResolutionClaimB
		}
		return &model.ResolutionSuggestion{
			Resolution: winner,
			Confidence: 0.6,
			Strategy:   "confidence",
			Reasoning:  fmt.Sprintf("extraction confidence margin %.2f at equal authority", math.Abs(margin)),
		}
	}

	return &model.ResolutionSuggestion{
		Resolution: model.ResolutionNeedsReview,
		Confidence: 0,
		Strategy:   "manual",
		Reasoning:  "equal authority and confidence within margin, no clear winner",
	}
}

// Resolve applies a resolution to a conflict and flags the subject's
// timeline entries in the conflicted category for review.
func (r *Resolver) Resolve(ctx context.Context, id string, res model.Resolution, notes, resolvedBy string) error {
	c, err := r.store.GetConflict(ctx, id)
	if err != nil {
		return eris.Wrap(err, "conflict: load for resolve")
	}

	if err := r.store.ResolveConflict(ctx, id, res, notes, resolvedBy); err != nil {
		return err
	}

	flagged, err := r.store.FlagTimelineForReview(ctx, c.SubjectID, c.FieldName)
	if err != nil {
		// The resolution itself stuck; surface the side-effect failure.
		return eris.Wrap(err, "conflict: flag timeline")
	}
	if flagged > 0 {
		zap.L().Info("timeline entries flagged for review",
			zap.String("subject_id", c.SubjectID),
			zap.String("category", c.FieldName),
			zap.Int("count", flagged),
		)
	}
	return nil
}

// AutoResolve resolves every unresolved conflict of the subject whose
// suggestion clears the configured confidence minimum and is not itself a
// needs_review verdict. It returns the number of conflicts resolved.
func (r *Resolver) AutoResolve(ctx context.Context, subjectID string) (int, error) {
	conflicts, err := r.store.ListConflicts(ctx, store.ConflictFilter{SubjectID: subjectID})
	if err != nil {
		return 0, eris.Wrap(err, "conflict: list for auto-resolve")
	}

	resolved := 0
	for i := range conflicts {
		c := &conflicts[i]
		suggestion := r.Suggest(ctx, c)
		if suggestion.Resolution == model.ResolutionNeedsReview || suggestion.Confidence < r.cfg.AutoResolveMin {
			continue
		}

		notes := fmt.Sprintf("auto-resolved [%s]: %s", suggestion.Strategy, suggestion.Reasoning)
		if err := r.Resolve(ctx, c.ID, suggestion.Resolution, notes, SystemResolver); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}
