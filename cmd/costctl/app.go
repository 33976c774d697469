// Command costctl is the thin CLI surface over the cost engine's core
// (spec §6: "the core exports the operations; the CLI is thin glue").
// It contains no domain logic — every subcommand parses flags/stdin,
// calls into internal/ingest, internal/aggregate, internal/forecast,
// internal/repricing, or internal/worker, and reports the result.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/aggregate"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/clock"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/config"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/costcalc"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/events"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/forecast"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/ingest"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/pricingcache"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/repricing"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage/postgres"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage/sqlite"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/worker"
)

// app bundles every core component a subcommand might need. One is built
// per invocation in the root command's PersistentPreRunE and torn down in
// PersistentPostRun.
type app struct {
	cfg config.Config

	db      *sql.DB
	closeDB func()

	repos      *storage.Repositories
	calc       *costcalc.Calculator
	clk        clock.Clock
	sink       events.Sink
	pipeline   *ingest.Pipeline
	aggregator *aggregate.Aggregator
	forecaster *forecast.Forecaster
	rescanner  *repricing.Scanner
}

// redisAddr, when non-empty, switches the pricing cache from its
// in-process default to a shared Redis-backed one.
var redisAddr string

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	repos, db, closeDB, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	pricingCache, err := newPricingCache(ctx)
	if err != nil {
		closeDB()
		return nil, err
	}
	repos.Pricing = pricingcache.New(repos.Pricing, pricingCache, 0)

	clk := clock.NewSystem()
	calc := costcalc.New(costcalc.WithScale(cfg.MonetaryScale))
	sink := events.NewSlogSink()

	return &app{
		cfg:        cfg,
		db:         db,
		closeDB:    closeDB,
		repos:      repos,
		calc:       calc,
		clk:        clk,
		sink:       sink,
		pipeline:   ingest.New(db, repos.Usage, repos.Cost, repos.Pricing, calc, ingest.WithSink(sink)),
		aggregator: aggregate.New(repos.Cost, repos.Usage),
		forecaster: forecast.New(repos.Cost, repos.Usage, clk, forecast.WithSink(sink)),
		rescanner:  repricing.New(db, repos.Usage, repos.Cost, calc, repricing.WithSink(sink)),
	}, nil
}

func (a *app) close() {
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *app) immediateWorker() *worker.ImmediateRunner {
	return worker.NewImmediateRunner(a.db, a.repos.Usage, a.repos.Cost, a.repos.Pricing, a.calc, a.cfg.WorkerBatchSize, worker.WithSink(a.sink))
}

func newPricingCache(ctx context.Context) (pricingcache.Cache, error) {
	if redisAddr == "" {
		return pricingcache.NewMemoryCache(pricingcache.DefaultConfig().KeyPrefix), nil
	}
	cfg := pricingcache.DefaultConfig()
	cfg.Address = redisAddr
	return pricingcache.NewRedisCache(ctx, cfg)
}

// openStore dispatches to storage/postgres or storage/sqlite based on the
// DSN scheme, the same rule config.Config.DatabaseURL documents.
func openStore(ctx context.Context, databaseURL string) (*storage.Repositories, *sql.DB, func(), error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		db, err := postgres.Open(ctx, postgres.Config{DSN: databaseURL})
		if err != nil {
			return nil, nil, nil, err
		}
		return db.Repositories, db.SQL, db.Close, nil
	}

	db, err := sqlite.Open(ctx, sqlite.Config{DSN: databaseURL})
	if err != nil {
		return nil, nil, nil, err
	}
	return db.Repositories, db.SQL, db.Close, nil
}
