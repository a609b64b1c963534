// Package conflict detects contradictory fact claims between sources and
// suggests or applies resolutions.
package conflict

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/store"
)

// Detector scans a subject's stored date claims for contradictions.
type Detector struct {
	store store.Store
}

// NewDetector creates a Detector.
func NewDetector(st store.Store) *Detector {
	return &Detector{store: st}
}

// DatesCompatible reports whether two normalized date values can both be
// true. Identical values are compatible, as are values in the same year
// where one is simply less specific than the other ("1923" and "1923-06").
// Everything else, including values from different years, contradicts.
func DatesCompatible(a, b string) bool {
	if a == b {
		return true
	}
	yearA, yearB := model.DateYear(a), model.DateYear(b)
	if yearA == 0 || yearB == 0 || yearA != yearB {
		return false
	}
	return model.DateSpecificity(a) != model.DateSpecificity(b)
}

// DetectSubject compares all pairs of the subject's non-rejected date
// claims per field and records a conflict for each incompatible pair not
// already on file. Re-running detection is a no-op for known pairs.
func (d *Detector) DetectSubject(ctx context.Context, subjectID string) ([]model.FactConflict, error) {
	extractions, err := d.store.ListExtractions(ctx, store.ExtractionFilter{
		SubjectID: subjectID,
		Kind:      model.KindDate,
	})
	if err != nil {
		return nil, eris.Wrap(err, "conflict: list date claims")
	}

	byField := make(map[string][]model.StoredExtraction)
	for _, ex := range extractions {
		if ex.Status == model.ReviewRejected || ex.Value == "" {
			continue
		}
		byField[ex.FieldName] = append(byField[ex.FieldName], ex)
	}

	tiers := newTierCache(d.store)
	var created []model.FactConflict

	for field, claims := range byField {
		for i := 0; i < len(claims); i++ {
			for j := i + 1; j < len(claims); j++ {
				a, b := claims[i], claims[j]
				if DatesCompatible(a.Value, b.Value) {
					continue
				}

				existing, err := d.store.FindConflictByPair(ctx, subjectID, field, a.Value, b.Value)
				if err != nil {
					return created, eris.Wrap(err, "conflict: pair lookup")
				}
				if existing != nil {
					continue
				}

				inserted, err := d.store.InsertConflict(ctx, model.FactConflict{
					SubjectID: subjectID,
					Type:      model.ConflictDateMismatch,
					FieldName: field,
					ClaimA:    d.buildClaim(ctx, tiers, a),
					ClaimB:    d.buildClaim(ctx, tiers, b),
				})
				if err != nil {
					return created, eris.Wrap(err, "conflict: insert")
				}
				created = append(created, *inserted)

				zap.L().Info("conflict detected",
					zap.String("subject_id", subjectID),
					zap.String("field", field),
					zap.String("value_a", a.Value),
					zap.String("value_b", b.Value),
				)
			}
		}
	}

	return created, nil
}

// buildClaim assembles a Claim from a stored extraction, resolving the
// source's authority tier by domain.
func (d *Detector) buildClaim(ctx context.Context, tiers *tierCache, ex model.StoredExtraction) model.Claim {
	ref := string(ex.SourceType) + ":" + ex.SourceID
	return model.Claim{
		Value:         ex.Value,
		SourceRef:     ref,
		Confidence:    ex.Confidence,
		AuthorityTier: tiers.lookup(ctx, ex.SourceType, ex.SourceID),
		Context:       ex.RawText,
	}
}

// tierCache memoizes domain tier lookups within one detection pass.
type tierCache struct {
	store store.Store
	tiers map[string]int
}

func newTierCache(st store.Store) *tierCache {
	return &tierCache{store: st, tiers: make(map[string]int)}
}

func (tc *tierCache) lookup(ctx context.Context, sourceType model.SourceType, sourceID string) int {
	key := string(sourceType) + ":" + sourceID
	if tier, ok := tc.tiers[key]; ok {
		return tier
	}

	tier := model.DefaultAuthorityTier
	src, err := tc.store.GetSource(ctx, sourceType, sourceID)
	if err == nil && src != nil && src.Domain != "" {
		if t, err := tc.store.GetAuthorityTier(ctx, src.Domain); err == nil {
			tier = t
		}
	}
	tc.tiers[key] = tier
	return tier
}
