package model

import "time"

// ExtractedDate is a dated event claim produced by an extraction provider.
type ExtractedDate struct {
	RawText    string  `json:"raw_text"`
	Normalized string  `json:"normalized"` // "2006", "2006-01", or "2006-01-02"
	Category   string  `json:"category"`   // verb category: build_date, opening, closure, ...
	Confidence float64 `json:"confidence"`
}

// ExtractedEntity is a person or organization claim.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Role       string  `json:"role,omitempty"` // person role or organization type
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the typed output of one provider call.
type ExtractionResult struct {
	Dates         []ExtractedDate   `json:"dates,omitempty"`
	People        []ExtractedEntity `json:"people,omitempty"`
	Organizations []ExtractedEntity `json:"organizations,omitempty"`
	Title         string            `json:"title,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
}

// summaryConfidence is the fixed weight a generated summary contributes to
// the job-level aggregate. Summaries carry no per-item score from the model.
const summaryConfidence = 0.8

// AggregateConfidence is the mean confidence across non-empty sub-results,
// with a generated summary weighted at a fixed 0.8.
func (r *ExtractionResult) AggregateConfidence() float64 {
	var sum float64
	var n int
	for _, d := range r.Dates {
		sum += d.Confidence
		n++
	}
	for _, p := range r.People {
		sum += p.Confidence
		n++
	}
	for _, o := range r.Organizations {
		sum += o.Confidence
		n++
	}
	if r.Summary != "" {
		sum += summaryConfidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ReviewStatus is the storage status assigned by the confidence gate or by
// later human review. Rows are never deleted, only status-transitioned.
type ReviewStatus string

const (
	ReviewPending   ReviewStatus = "pending"
	ReviewApproved  ReviewStatus = "approved"
	ReviewRejected  ReviewStatus = "rejected"
	ReviewCorrected ReviewStatus = "corrected"
)

// ExtractionKind discriminates stored extraction rows.
type ExtractionKind string

const (
	KindDate         ExtractionKind = "date"
	KindPerson       ExtractionKind = "person"
	KindOrganization ExtractionKind = "organization"
	KindSummary      ExtractionKind = "summary"
)

// StoredExtraction is a persisted fact with provenance and review status.
type StoredExtraction struct {
	ID         string         `json:"id"`
	SubjectID  string         `json:"subject_id"`
	SourceType SourceType     `json:"source_type"`
	SourceID   string         `json:"source_id"`
	Kind       ExtractionKind `json:"kind"`
	FieldName  string         `json:"field_name"` // semantic category, e.g. "build_date"
	RawText    string         `json:"raw_text"`
	Value      string         `json:"value"` // normalized value
	Confidence float64        `json:"confidence"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Status     ReviewStatus   `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}
