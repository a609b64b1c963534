package model

import (
	"fmt"
	"regexp"
	"time"
)

// DatePrecision classifies how specific a normalized date string is.
type DatePrecision string

const (
	PrecisionExact DatePrecision = "exact" // YYYY-MM-DD
	PrecisionMonth DatePrecision = "month" // YYYY-MM
	PrecisionYear  DatePrecision = "year"  // YYYY
)

// TimelineEntry is a dated event on a subject's timeline, derived from an
// approved date extraction.
type TimelineEntry struct {
	ID          string        `json:"id"`
	SubjectID   string        `json:"subject_id"`
	Category    string        `json:"category"`
	DateStart   string        `json:"date_start"` // YYYY-MM-DD, padded from precision
	Precision   DatePrecision `json:"precision"`
	Display     string        `json:"display"`  // as-precise-as-known display form
	SortKey     int           `json:"sort_key"` // YYYYMMDD integer, midpoint-padded
	SourceType  SourceType    `json:"source_type"`
	SourceRef   string        `json:"source_ref"`
	Notes       string        `json:"notes,omitempty"`
	NeedsReview bool          `json:"needs_review"`
	CreatedAt   time.Time     `json:"created_at"`
}

var (
	exactDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	monthDateRe = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearDateRe  = regexp.MustCompile(`^(\d{4})$`)
)

// ParsedDate holds the timeline fields derived from a normalized date string.
type ParsedDate struct {
	DateStart string
	Precision DatePrecision
	Display   string
	SortKey   int
}

// ParseNormalizedDate expands a normalized date ("1923", "1923-06", or
// "1923-06-15") into timeline fields. Imprecise dates sort at the midpoint
// of their span so year-only events interleave sensibly with exact ones.
func ParseNormalizedDate(s string) (*ParsedDate, error) {
	if m := exactDateRe.FindStringSubmatch(s); m != nil {
		return &ParsedDate{
			DateStart: s,
			Precision: PrecisionExact,
			Display:   s,
			SortKey:   atoi(m[1])*10000 + atoi(m[2])*100 + atoi(m[3]),
		}, nil
	}
	if m := monthDateRe.FindStringSubmatch(s); m != nil {
		return &ParsedDate{
			DateStart: s + "-01",
			Precision: PrecisionMonth,
			Display:   s,
			SortKey:   atoi(m[1])*10000 + atoi(m[2])*100 + 15,
		}, nil
	}
	if m := yearDateRe.FindStringSubmatch(s); m != nil {
		return &ParsedDate{
			DateStart: s + "-01-01",
			Precision: PrecisionYear,
			Display:   s,
			SortKey:   atoi(m[1])*10000 + 701,
		}, nil
	}
	return nil, fmt.Errorf("unparseable normalized date %q", s)
}

// DateYear returns the year component of a normalized date string, or 0.
func DateYear(s string) int {
	if len(s) < 4 {
		return 0
	}
	return atoi(s[:4])
}

// DateSpecificity counts the components of a normalized date string:
// 1 for year, 2 for year-month, 3 for a full date, 0 if unparseable.
func DateSpecificity(s string) int {
	switch {
	case exactDateRe.MatchString(s):
		return 3
	case monthDateRe.MatchString(s):
		return 2
	case yearDateRe.MatchString(s):
		return 1
	}
	return 0
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}
