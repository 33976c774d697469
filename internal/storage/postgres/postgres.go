// Package postgres is the Postgres-backed persistence layer (spec §4.5).
// It connects through database/sql using the pgx stdlib driver so the
// repository implementations can share the storage.Querier contract with
// storage/sqlite. The database/sql handle is opened over a pgxpool.Pool,
// which DB also exposes; the repositories and the ingestion pipeline's
// snapshot-isolation ingest+cost transaction all go through the
// database/sql handle, and no component here uses the pool directly.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage/migrate"
)

// Config mirrors the teacher's db.Config shape.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// SkipMigrate, when true, leaves schema setup to an external migration
	// runner instead of applying the embedded migrations on Open.
	SkipMigrate bool
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 10
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 15 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	return c
}

// DB wraps the database/sql handle plus the three repository
// implementations and the pgxpool.Pool the handle is opened over.
type DB struct {
	*storage.Repositories
	SQL  *sql.DB
	Pool *pgxpool.Pool
}

// Open establishes both a database/sql handle (via pgx's stdlib adapter)
// and a pgxpool.Pool against the same DSN, retrying the initial ping with
// exponential backoff (grounded on the teacher's hand-rolled 3-attempt
// retry loop in db/postgres.go, generalized to cenkalti/backoff/v5).
func Open(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}
	log := logx.WithComponent("storage.postgres")

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN for pool: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingOp := func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return struct{}{}, db.PingContext(pingCtx)
	}
	if _, err := backoff.Retry(ctx, pingOp, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff())); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	log.Info("postgres pool configured", "max_open", cfg.MaxOpenConns, "max_idle", cfg.MaxIdleConns)

	if !cfg.SkipMigrate {
		if err := migrate.ApplyPostgres(ctx, db); err != nil {
			db.Close()
			pool.Close()
			return nil, fmt.Errorf("postgres: migration failed: %w", err)
		}
	}

	return &DB{
		Repositories: &storage.Repositories{
			Usage:   &usageRepo{},
			Cost:    &costRepo{},
			Pricing: &pricingRepo{},
		},
		SQL:  db,
		Pool: pool,
	}, nil
}

// Close releases both the database/sql handle and the pgx pool.
func (d *DB) Close() {
	d.SQL.Close()
	d.Pool.Close()
}
