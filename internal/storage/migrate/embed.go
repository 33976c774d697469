package migrate

import (
	"context"
	"database/sql"
	"embed"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// ApplyPostgres runs every pending embedded Postgres migration against db.
func ApplyPostgres(ctx context.Context, db *sql.DB) error {
	m := NewWithFS(db, "postgres", postgresMigrations, "migrations/postgres")
	if err := m.LoadMigrationsFromFS(); err != nil {
		return err
	}
	return m.Up(ctx)
}

// ApplySQLite runs every pending embedded SQLite migration against db.
func ApplySQLite(ctx context.Context, db *sql.DB) error {
	m := NewWithFS(db, "sqlite", sqliteMigrations, "migrations/sqlite")
	if err := m.LoadMigrationsFromFS(); err != nil {
		return err
	}
	return m.Up(ctx)
}
