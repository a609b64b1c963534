package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/archivist-labs/chronicle/internal/config"
	"github.com/archivist-labs/chronicle/internal/cost"
	"github.com/archivist-labs/chronicle/internal/model"
	"github.com/archivist-labs/chronicle/internal/resilience"
	"github.com/archivist-labs/chronicle/pkg/anthropic"
)

// AnthropicProvider extracts facts with the Anthropic Messages API behind
// a rate limiter and a circuit breaker shared by all queue workers.
type AnthropicProvider struct {
	client  anthropic.Client
	cfg     config.AnthropicConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	costs   *cost.Tracker
}

// NewAnthropicProvider wires the provider from config. The tracker may be
// nil when spend reporting is not wanted.
func NewAnthropicProvider(client anthropic.Client, cfg config.AnthropicConfig, costs *cost.Tracker) *AnthropicProvider {
	perSecond := rate.Limit(cfg.RequestsPerMin / 60.0)
	if perSecond <= 0 {
		perSecond = rate.Inf
	}

	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")

	return &AnthropicProvider{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(perSecond, 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitThreshold,
			ResetTimeout:     30 * time.Second,
			ShouldTrip:       resilience.IsTransient,
		}),
		retry: retry,
		costs: costs,
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Extract implements Provider. The call is rate limited, retried on
// transient failures, and guarded by the circuit breaker; the parsed result
// carries provider and model provenance.
func (p *AnthropicProvider) Extract(ctx context.Context, req Request) (*model.ExtractionResult, error) {
	if req.Source == nil {
		return nil, resilience.NewPermanentError(eris.New("extract: nil source"))
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
	defer cancel()

	system := anthropic.BuildCachedSystemBlocks(BuildSystemPrompt(req.Tasks))
	user := BuildUserPrompt(req)
	temperature := 0.0

	resp, err := resilience.DoVal(callCtx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return p.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:       p.cfg.ExtractModel,
				MaxTokens:   p.cfg.MaxTokens,
				System:      system,
				Messages:    []anthropic.Message{{Role: "user", Content: user}},
				Temperature: &temperature,
			})
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: anthropic call")
	}

	resp.Usage.LogUsage(resp.Model, "extraction")
	if p.costs != nil {
		p.costs.Record("extraction", resp.Model, cost.Usage{
			InputTokens:      int(resp.Usage.InputTokens),
			OutputTokens:     int(resp.Usage.OutputTokens),
			CacheWriteTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:  int(resp.Usage.CacheReadInputTokens),
		})
	}

	result, err := ParseResult(resp.Text(), req.Tasks)
	if err != nil {
		zap.L().Warn("unparseable extraction response",
			zap.String("source", req.Source.Ref()),
			zap.Error(err),
		)
		return nil, err
	}

	result.Provider = p.Name()
	result.Model = resp.Model
	return result, nil
}
