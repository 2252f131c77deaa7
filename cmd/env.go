package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/batch"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/catalog"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/ledger"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/pipeline"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/store"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/suggest"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/unify"
	"github.com/AtanasChobanov/PromoMania-sub001/pkg/anthropic"
)

// appEnv holds the initialized store and the wired pipeline pieces shared
// by the ingest/serve/schedule commands.
type appEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Suggest  *suggest.Engine
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend. Postgres is the production
// driver; sqlite serves local runs and development.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, the unification oracle, and the ingestion
// pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("PROMOMANIA_ANTHROPIC_KEY is required")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSec, cfg.Anthropic.Burst)
	unifier := unify.NewClaudeUnifier(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Unify.RetryAttempts)
	normalizer := unify.NewNormalizer(st, unifier, batch.Options{
		BatchSize:   cfg.Unify.BatchSize,
		Concurrency: cfg.Unify.Concurrency,
		Cooldown:    time.Duration(cfg.Unify.CooldownSecs) * time.Second,
	})

	resolver := catalog.NewResolver(st)
	priceLedger := ledger.NewLedger(st)

	return &appEnv{
		Store:    st,
		Pipeline: pipeline.New(normalizer, resolver, priceLedger, cfg.Ingest.MaxConcurrentProducts),
		Suggest:  suggest.NewEngine(st),
	}, nil
}

// initStoreEnv opens and migrates only the store, for commands that never
// touch the oracle.
func initStoreEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return &appEnv{Store: st, Suggest: suggest.NewEngine(st)}, nil
}
