package model

import "time"

// ConflictType discriminates conflict records. Only date mismatches are
// detected today; the column exists so other fact kinds can join later.
type ConflictType string

const (
	ConflictDateMismatch ConflictType = "date_mismatch"
)

// Resolution is the outcome of a resolved conflict.
type Resolution string

const (
	ResolutionClaimA      Resolution = "claim_a"
	ResolutionClaimB      Resolution = "claim_b"
	ResolutionBothValid   Resolution = "both_valid"
	ResolutionNeedsReview Resolution = "needs_review"
)

// Claim is one source's assertion of a fact value, with provenance.
type Claim struct {
	Value         string  `json:"value"`
	SourceRef     string  `json:"source_ref"`
	Confidence    float64 `json:"confidence"`
	AuthorityTier int     `json:"authority_tier"`
	Context       string  `json:"context,omitempty"`
}

// FactConflict links two contradictory claims about the same field of the
// same subject. The claim pair is unordered: (A,B) and (B,A) are the same
// conflict.
type FactConflict struct {
	ID         string       `json:"id"`
	SubjectID  string       `json:"subject_id"`
	Type       ConflictType `json:"type"`
	FieldName  string       `json:"field_name"`
	ClaimA     Claim        `json:"claim_a"`
	ClaimB     Claim        `json:"claim_b"`
	Resolved   bool         `json:"resolved"`
	Resolution Resolution   `json:"resolution,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	ResolvedBy string       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// PairKey returns the canonical unordered key for a claim value pair, so
// symmetric lookups treat (a,b) and (b,a) as identical.
func PairKey(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ResolutionSuggestion is a strategy's proposed outcome for a conflict.
type ResolutionSuggestion struct {
	Resolution  Resolution `json:"resolution"`
	Confidence  float64    `json:"confidence"`
	Strategy    string     `json:"strategy"` // "source_authority", "confidence", "model", "manual"
	Reasoning   string     `json:"reasoning"`
	MergedValue string     `json:"merged_value,omitempty"`
}

// SourceAuthority maps a provenance domain to a trust tier: 1 is most
// authoritative, 4 least. Unknown domains default to DefaultAuthorityTier.
type SourceAuthority struct {
	Domain    string    `json:"domain"`
	Tier      int       `json:"tier"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAuthorityTier is assumed for domains with no explicit rating.
const DefaultAuthorityTier = 3
