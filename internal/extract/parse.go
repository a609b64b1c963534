package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
)

// ParseResult decodes a model response into an ExtractionResult. Responses
// wrapped in markdown fences or surrounded by prose are tolerated; anything
// without a decodable JSON object is a permanent failure (retrying the same
// prompt rarely fixes malformed output at temperature zero).
func ParseResult(raw string, tasks model.TaskSet) (*model.ExtractionResult, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return nil, resilience.NewPermanentError(eris.New("extract: no JSON object in model response"))
	}

	var result model.ExtractionResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "extract: decode model response"))
	}

	// Drop keys the job never asked for. Models sometimes volunteer extras.
	if !tasks.Has(model.TaskDates) {
		result.Dates = nil
	}
	if !tasks.Has(model.TaskEntities) {
		result.People = nil
		result.Organizations = nil
	}
	if !tasks.Has(model.TaskTitle) {
		result.Title = ""
	}
	if !tasks.Has(model.TaskSummary) {
		result.Summary = ""
	}

	clampResult(&result)
	return &result, nil
}

// extractJSONObject returns the outermost {...} span of raw, stripping
// markdown fences first.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampResult(r *model.ExtractionResult) {
	for i := range r.Dates {
		r.Dates[i].Confidence = clampConfidence(r.Dates[i].Confidence)
	}
	for i := range r.People {
		r.People[i].Confidence = clampConfidence(r.People[i].Confidence)
	}
	for i := range r.Organizations {
		r.Organizations[i].Confidence = clampConfidence(r.Organizations[i].Confidence)
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
