// Package sqlite is the embedded-database persistence backend (spec
// §4.5): a single-writer SQLite file, suited to local development and
// the costctl CLI's default store rather than a production deployment.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/storage/migrate"
)

// Config mirrors the teacher's db.Config shape, trimmed to what SQLite
// uses.
type Config struct {
	// DSN is a file path, or ":memory:" for an ephemeral database.
	DSN             string
	ConnMaxLifetime time.Duration
	SkipMigrate     bool
}

// DB wraps the database/sql handle and the three repository
// implementations.
type DB struct {
	*storage.Repositories
	SQL *sql.DB
}

// Open opens (creating if necessary) the SQLite database at cfg.DSN,
// in WAL mode with foreign keys enabled, and applies the embedded
// migrations. SQLite supports only a single writer, so the pool is
// capped at one open connection (grounded on the teacher's
// NewSQLite, which makes the same tradeoff).
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "costengine.db"
	}
	log := logx.WithComponent("storage.sqlite")

	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to connect: %w", err)
	}

	if !cfg.SkipMigrate {
		if err := migrate.ApplySQLite(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: migration failed: %w", err)
		}
	}
	log.Info("sqlite database ready", "dsn", dsn)

	return &DB{
		Repositories: &storage.Repositories{
			Usage:   &usageRepo{},
			Cost:    &costRepo{},
			Pricing: &pricingRepo{},
		},
		SQL: db,
	}, nil
}

// Close releases the database/sql handle.
func (d *DB) Close() {
	d.SQL.Close()
}
