// Package preprocess coordinates the sentence-annotation helper process
// and guarantees a usable (possibly degraded) preprocessing result for
// every extraction job.
package preprocess

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/pkg/nlp"
)

// State is the coordinator lifecycle state.
type State int

const (
	// StateUninitialized means no availability check has run yet.
	StateUninitialized State = iota
	// StateReady means the helper answered a health probe.
	StateReady
	// StateDegraded means the helper is unreachable and could not be
	// spawned. Degraded is permanent for the coordinator's lifetime.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// readinessMarker is the line the helper prints to stdout once its HTTP
// server is accepting requests.
const readinessMarker = "Application startup complete"

// probeTimeout bounds a single health probe.
const probeTimeout = 5 * time.Second

// Coordinator manages helper availability and falls back to naive local
// preprocessing whenever the helper cannot serve a call.
type Coordinator struct {
	cfg     config.NLPConfig
	client  nlp.Client
	lexicon *Lexicon

	mu    sync.Mutex
	state State
	child *exec.Cmd
}

// NewCoordinator creates a Coordinator. The lexicon parse error is
// tolerated: annotation in fallback mode is then skipped, never fatal.
func NewCoordinator(cfg config.NLPConfig, client nlp.Client) *Coordinator {
	lexicon, err := DefaultLexicon()
	if err != nil {
		zap.L().Warn("verb lexicon unavailable", zap.Error(err))
	}
	return &Coordinator{
		cfg:     cfg,
		client:  client,
		lexicon: lexicon,
	}
}

// Available reports whether the helper can serve calls, lazily
// initializing it on first use. A degraded coordinator stays degraded; no
// spawn retries.
func (c *Coordinator) Available(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return c.state == StateReady
	}

	if c.probe(ctx) {
		c.transition(StateReady)
		return true
	}

	if !c.cfg.AutoStart || c.cfg.Command == "" {
		c.transition(StateDegraded)
		return false
	}

	if err := c.spawn(ctx); err != nil {
		zap.L().Warn("helper spawn failed, running degraded",
			zap.String("command", c.cfg.Command),
			zap.Error(err),
		)
		c.transition(StateDegraded)
		return false
	}

	c.transition(StateReady)
	return true
}

// State returns the current lifecycle state without triggering init.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Shutdown kills the spawned helper process, if any, and releases its
// handle. Helpers started externally are left alone.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.child != nil && c.child.Process != nil {
		if err := c.child.Process.Kill(); err != nil {
			zap.L().Warn("helper kill failed", zap.Error(err))
		}
		_ = c.child.Wait()
		c.child = nil
	}
	c.state = StateUninitialized
}

// Preprocess annotates text for extraction. It never fails: helper errors
// degrade to the naive local path for that call only.
func (c *Coordinator) Preprocess(ctx context.Context, text, articleDate string) *model.PreprocessingResult {
	maxSentences := c.cfg.MaxSentences
	if !c.Available(ctx) {
		return fallbackPreprocess(text, c.lexicon, maxSentences)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	resp, err := c.client.Preprocess(callCtx, nlp.PreprocessRequest{
		Text:         text,
		ArticleDate:  articleDate,
		MaxSentences: maxSentences,
	})
	if err != nil {
		zap.L().Warn("helper preprocess failed, using fallback for this call",
			zap.Error(err),
		)
		return fallbackPreprocess(text, c.lexicon, maxSentences)
	}

	return c.mapResponse(resp)
}

// probe checks helper health with its own short timeout.
func (c *Coordinator) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	h, err := c.client.Health(probeCtx)
	return err == nil && h.Status == "healthy" && h.SpacyModel != ""
}

// spawn starts the helper process and waits for its readiness marker on
// stdout, confirmed by a health probe, within the startup timeout.
func (c *Coordinator) spawn(ctx context.Context) error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}

	ready := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(stdout)
		notified := false
		for scanner.Scan() {
			if !notified && strings.Contains(scanner.Text(), readinessMarker) {
				notified = true
				close(ready)
			}
			// Keep draining so the child never blocks on a full pipe.
		}
	}()

	select {
	case <-ready:
	case <-time.After(c.cfg.StartupTimeout()):
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return errStartupTimeout
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return ctx.Err()
	}

	// The marker alone is not trusted; confirm over HTTP.
	if !c.probe(ctx) {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return errProbeAfterSpawn
	}

	c.child = cmd
	zap.L().Info("helper process started",
		zap.String("command", c.cfg.Command),
		zap.Int("pid", cmd.Process.Pid),
	)
	return nil
}

func (c *Coordinator) transition(to State) {
	if c.state != to {
		zap.L().Info("preprocess coordinator state",
			zap.String("from", c.state.String()),
			zap.String("to", to.String()),
		)
	}
	c.state = to
}

// mapResponse converts helper wire sentences to the domain result,
// assigning relevancy bands and aggregating profile candidates.
func (c *Coordinator) mapResponse(resp *nlp.PreprocessResponse) *model.PreprocessingResult {
	result := &model.PreprocessingResult{
		Sentences: make([]model.AnnotatedSentence, 0, len(resp.Sentences)),
	}
	result.Stats.TotalWords = resp.WordCount
	result.Stats.EntityCounts = make(map[string]int)
	result.Stats.VerbCounts = make(map[string]int)

	people := newCandidateSet()
	orgs := newCandidateSet()

	for _, s := range resp.Sentences {
		annotated := model.AnnotatedSentence{
			Text:       s.Text,
			Index:      s.Index,
			Confidence: clamp01(s.RelevanceScore),
		}

		for _, v := range s.Verbs {
			annotated.Verbs = append(annotated.Verbs, model.VerbMatch{
				Text: v.Text, Lemma: v.Lemma, Category: v.Category, Position: v.Position,
			})
			result.Stats.VerbCounts[v.Category]++
		}
		for _, e := range s.Entities {
			annotated.Entities = append(annotated.Entities, model.EntitySpan{
				Text: e.Text, Label: e.Label, Start: e.Start, End: e.End,
			})
			result.Stats.EntityCounts[e.Label]++
			switch e.Label {
			case "PERSON":
				annotated.HasPerson = true
				people.add(e.Text, s.Index, s.Text)
			case "ORG":
				annotated.HasOrg = true
				orgs.add(e.Text, s.Index, s.Text)
			case "DATE":
				annotated.HasDate = true
			}
		}
		for _, d := range s.Dates {
			annotated.DateRefs = append(annotated.DateRefs, model.DateRef{
				Text: d.Text, Normalized: d.Normalized, Precision: d.Precision,
			})
			annotated.HasDate = true
		}

		annotated.Relevancy = classifySentence(s, annotated)
		if annotated.Relevancy == model.RelevancyTimeline {
			result.Stats.TimelineSentences++
		}
		result.Sentences = append(result.Sentences, annotated)
	}

	result.Stats.TotalSentences = len(result.Sentences)
	result.People = people.candidates()
	result.Organizations = orgs.candidates()
	result.Context = buildContext(result.Sentences, c.lexicon)
	return result
}

// classifySentence assigns the relevancy band: helper-confirmed timeline
// sentences first, then likely-timeline by score, then profile sentences
// carrying people or organizations, everything else is plain context.
func classifySentence(s nlp.SentenceAnnotation, annotated model.AnnotatedSentence) model.Relevancy {
	switch {
	case s.IsTimelineRelevant:
		return model.RelevancyTimeline
	case s.RelevanceScore >= 0.3:
		return model.RelevancyTimelinePossible
	case annotated.HasPerson || annotated.HasOrg:
		return model.RelevancyProfile
	default:
		return model.RelevancyContext
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
