package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/archivist-labs/chronicle/internal/conflict"
	"github.com/archivist-labs/chronicle/internal/cost"
	"github.com/archivist-labs/chronicle/internal/extract"
	"github.com/archivist-labs/chronicle/internal/preprocess"
	"github.com/archivist-labs/chronicle/internal/queue"
	"github.com/archivist-labs/chronicle/internal/store"
	anthropicpkg "github.com/archivist-labs/chronicle/pkg/anthropic"
	"github.com/archivist-labs/chronicle/pkg/nlp"
)

// appEnv holds everything the worker, serve, and conflict commands need.
type appEnv struct {
	Store    store.Store
	Costs    *cost.Tracker
	Pre      *preprocess.Coordinator
	Queue    *queue.Coordinator
	Detector *conflict.Detector
	Resolver *conflict.Resolver
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Pre != nil {
		e.Pre.Shutdown()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend without migrating.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, API clients, and pipeline components.
// Callers should defer env.Close(). The queue coordinator is constructed
// but not started.
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Anthropic.Key == "" {
		_ = st.Close()
		return nil, eris.New("CHRONICLE_ANTHROPIC_KEY is required")
	}
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	costs := cost.NewTracker(cost.DefaultRates())

	nlpClient := nlp.NewClient(nlp.WithBaseURL(cfg.NLP.BaseURL))
	pre := preprocess.NewCoordinator(cfg.NLP, nlpClient)

	registry := extract.NewRegistry()
	registry.Register(extract.NewAnthropicProvider(anthropicClient, cfg.Anthropic, costs))
	provider, err := registry.Get("anthropic")
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	detector := conflict.NewDetector(st)
	judge := conflict.NewAnthropicJudge(anthropicClient, cfg.Anthropic, costs)
	resolver := conflict.NewResolver(st, judge, cfg.Conflict)

	gate := queue.NewGate(st, cfg.Gate)
	processor := queue.NewProcessor(st, pre, provider, gate, detector, cfg.Queue.MinTextLength)
	coordinator := queue.NewCoordinator(st, processor, cfg.Queue)

	return &appEnv{
		Store:    st,
		Costs:    costs,
		Pre:      pre,
		Queue:    coordinator,
		Detector: detector,
		Resolver: resolver,
	}, nil
}

// initStoreOnly opens and migrates the store for commands that never call
// external APIs.
func initStoreOnly(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// logCostTotals emits the per-purpose spend summary at shutdown.
func logCostTotals(costs *cost.Tracker) {
	totals := costs.Totals()
	if len(totals) == 0 {
		return
	}
	for purpose, pt := range totals {
		zap.L().Info("api spend",
			zap.String("purpose", purpose),
			zap.Int("calls", pt.Calls),
			zap.Int("input_tokens", pt.InputTokens),
			zap.Int("output_tokens", pt.OutputTokens),
			zap.Float64("usd", pt.USD),
		)
	}
	zap.L().Info("api spend total", zap.Float64("usd", costs.TotalUSD()))
}
