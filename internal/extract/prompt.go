package extract

import (
	"fmt"
	"strings"

	"github.com/archivist-labs/chronicle/internal/model"
)

// promptTextLimit caps the raw text included in the user prompt. The
// condensed preprocessing context carries the high-signal sentences, so
// the raw tail is only there for grounding.
const promptTextLimit = 6000

const systemPromptHeader = `You are a careful research assistant extracting structured facts from historical source text about a single subject (a building, venue, organization, or site).

Return ONLY a JSON object, no prose and no markdown fences. Omit any top-level key you were not asked for. Every extracted item carries a "confidence" between 0.0 and 1.0 reflecting how directly the text supports it.

Rules:
- Extract only facts stated in the text. Never infer dates or names that are not present.
- Normalize dates to "YYYY", "YYYY-MM", or "YYYY-MM-DD" depending on how precise the text is. Keep the original wording in "raw_text".
- Classify each date with a category: build_date, opening, closure, demolition, renovation, event, visit, publication, or ownership.
- People and organizations include a "role" when the text states one.`

// taskInstructions maps each task to the schema fragment the model must
// produce for it.
var taskInstructions = map[model.Task]string{
	model.TaskDates: `"dates": [{"raw_text": string, "normalized": string, "category": string, "confidence": number}]`,
	model.TaskEntities: `"people": [{"name": string, "role": string, "context": string, "confidence": number}],
"organizations": [{"name": string, "role": string, "context": string, "confidence": number}]`,
	model.TaskTitle:   `"title": string (a short descriptive title for the source document)`,
	model.TaskSummary: `"summary": string (2-3 sentences summarizing what the source says about the subject)`,
}

// BuildSystemPrompt renders the task-dependent system prompt. Jobs with the
// same task set share one prompt string, which keeps it cacheable.
func BuildSystemPrompt(tasks model.TaskSet) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\nProduce these keys:\n")
	for _, t := range tasks {
		if instr, ok := taskInstructions[t]; ok {
			b.WriteString(instr)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// BuildUserPrompt assembles the per-job prompt: preprocessing hints first
// (timeline sentences carry the dates we care about), then entity
// candidates, then the bounded raw text.
func BuildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source: %s", req.Source.Ref())
	if req.Source.Title != "" {
		fmt.Fprintf(&b, " (%q)", req.Source.Title)
	}
	if req.Source.ArticleDate != "" {
		fmt.Fprintf(&b, ", published %s", req.Source.ArticleDate)
	}
	b.WriteString("\n")

	if req.Pre != nil {
		if req.Pre.Degraded {
			b.WriteString("Note: linguistic preprocessing was unavailable; the hints below are heuristic.\n")
		}
		if req.Pre.Context != "" {
			b.WriteString("\nKey sentences (most timeline-relevant first):\n")
			b.WriteString(req.Pre.Context)
			b.WriteString("\n")
		}
		writeCandidates(&b, "People mentioned", req.Pre.People)
		writeCandidates(&b, "Organizations mentioned", req.Pre.Organizations)
	}

	b.WriteString("\nFull text:\n")
	b.WriteString(truncateText(req.Source.Text, promptTextLimit))
	return b.String()
}

func writeCandidates(b *strings.Builder, label string, candidates []model.ProfileCandidate) {
	if len(candidates) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", label)
	for i, c := range candidates {
		if i >= 10 {
			break
		}
		fmt.Fprintf(b, "- %s (%d mentions)\n", c.Name, c.Mentions)
	}
}

func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
