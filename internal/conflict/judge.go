package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/cost"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/pkg/anthropic"
)

const judgeSystemPrompt = `You are adjudicating between two contradictory claims about the same fact, extracted from different historical sources.

Weigh source authority tier (1 is most authoritative, 4 least), extraction confidence, and the quoted context. Return ONLY a JSON object:
{"resolution": "claim_a" | "claim_b" | "both_valid" | "needs_review", "confidence": number, "reasoning": string, "merged_value": string (optional, when both claims are partially right)}

Prefer "needs_review" over guessing when the evidence is genuinely ambiguous.`

// AnthropicJudge escalates conflicts to a model for judgment.
type AnthropicJudge struct {
	client anthropic.Client
	cfg    config.AnthropicConfig
	costs  *cost.Tracker
}

// NewAnthropicJudge creates a Judge backed by the Anthropic API. The
// tracker may be nil.
func NewAnthropicJudge(client anthropic.Client, cfg config.AnthropicConfig, costs *cost.Tracker) *AnthropicJudge {
	return &AnthropicJudge{client: client, cfg: cfg, costs: costs}
}

// Judge implements Judge. Provider failures and unparseable verdicts are
// returned as errors so the caller can fall back to its rule suggestion.
func (j *AnthropicJudge) Judge(ctx context.Context, c *model.FactConflict) (*model.ResolutionSuggestion, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.cfg.Timeout())
	defer cancel()

	temperature := 0.0
	resp, err := j.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       j.cfg.ResolveModel,
		MaxTokens:   1024,
		System:      []anthropic.SystemBlock{{Text: judgeSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: judgePrompt(c)}},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, eris.Wrap(err, "conflict: judge call")
	}

	resp.Usage.LogUsage(resp.Model, "conflict_resolution")
	if j.costs != nil {
		j.costs.Record("conflict_resolution", resp.Model, cost.Usage{
			InputTokens:      int(resp.Usage.InputTokens),
			OutputTokens:     int(resp.Usage.OutputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
		})
	}

	return parseVerdict(resp.Text())
}

func judgePrompt(c *model.FactConflict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\nField: %s\n\n", c.SubjectID, c.FieldName)
	writeClaim(&b, "Claim A", c.ClaimA)
	writeClaim(&b, "Claim B", c.ClaimB)
	return b.String()
}

func writeClaim(b *strings.Builder, label string, claim model.Claim) {
	fmt.Fprintf(b, "%s: %q\n  source: %s (authority tier %d)\n  extraction confidence: %.2f\n",
		label, claim.Value, claim.SourceRef, claim.AuthorityTier, claim.Confidence)
	if claim.Context != "" {
		fmt.Fprintf(b, "  context: %s\n", claim.Context)
	}
	b.WriteString("\n")
}

// verdictPayload is the wire shape of the judge's JSON reply.
type verdictPayload struct {
	Resolution  string  `json:"resolution"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
	MergedValue string  `json:"merged_value"`
}

func parseVerdict(raw string) (*model.ResolutionSuggestion, error) {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, eris.New("conflict: no JSON object in judge response")
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		return nil, eris.Wrap(err, "conflict: decode judge response")
	}

	res := model.Resolution(payload.Resolution)
	switch res {
	case model.ResolutionClaimA, model.ResolutionClaimB, model.ResolutionBothValid, model.ResolutionNeedsReview:
	default:
		return nil, eris.Errorf("conflict: judge returned unknown resolution %q", payload.Resolution)
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &model.ResolutionSuggestion{
		Resolution:  res,
		Confidence:  confidence,
		Strategy:    "model",
		Reasoning:   payload.Reasoning,
		MergedValue: payload.MergedValue,
	}, nil
}
