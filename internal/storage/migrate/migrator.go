// Package migrate applies the core cost engine's schema migrations
// against either backend (spec §4.5).
//
// Every migration runs inside a transaction where the driver supports one,
// checksums catch a migration file edited after it was applied, and
// Status/Up/Down/DownTo give callers both a CLI-driven and a programmatic
// (cmd/costctl, storage/postgres.Open, storage/sqlite.Open) path to the
// same logic.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/errs"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
)

// Migration is one versioned schema change, parsed from a
// `NNN_name.sql` file with optional `-- +migrate Up`/`-- +migrate Down`
// section markers.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	Checksum  string
	AppliedAt time.Time // zero until applied
}

// Record is one row of the migration-history table.
type Record struct {
	Version   int       `db:"version"`
	Name      string    `db:"name"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"applied_at"`
	DurationMs int64    `db:"duration_ms"`
}

// Config tunes a Migrator's behavior. The zero value is DefaultConfig.
type Config struct {
	// TableName holds migration history; defaults to "schema_migrations".
	TableName string

	// DisableTransactions skips wrapping each migration in a transaction,
	// for statements a driver can't run transactionally (e.g. Postgres's
	// CREATE INDEX CONCURRENTLY).
	DisableTransactions bool

	// DryRun logs what would run without applying or recording any
	// migration; the migration-history table is still created.
	DryRun bool

	// AllowMissingDown permits rolling back a migration with no down
	// script by treating it as a no-op schema change.
	AllowMissingDown bool
}

// DefaultConfig returns the engine's defaults: transactional, not dry-run,
// down scripts required.
func DefaultConfig() Config {
	return Config{TableName: "schema_migrations"}
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(m *Migrator) {
		if cfg.TableName == "" {
			cfg.TableName = "schema_migrations"
		}
		m.cfg = cfg
	}
}

// Migrator applies and rolls back versioned schema migrations against db.
type Migrator struct {
	db         *sql.DB
	driver     string // "postgres" or "sqlite"
	migrations []Migration
	cfg        Config
	log        *slog.Logger

	fs     embed.FS
	fsPath string
}

// New builds a Migrator with no migrations loaded; call one of the
// LoadMigrationsFrom* methods before Up/Down.
func New(db *sql.DB, driver string, opts ...Option) *Migrator {
	m := &Migrator{db: db, driver: driver, cfg: DefaultConfig(), log: logx.WithComponent("migrate")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewWithFS builds a Migrator backed by an embedded migrations directory.
func NewWithFS(db *sql.DB, driver string, migrationsFS embed.FS, path string, opts ...Option) *Migrator {
	m := New(db, driver, opts...)
	m.fs = migrationsFS
	m.fsPath = path
	return m
}

// LoadMigrationsFromFS loads every `NNN_name.sql` file from the embedded
// filesystem configured via NewWithFS.
func (m *Migrator) LoadMigrationsFromFS() error {
	if m.fs == (embed.FS{}) {
		return errs.Internal("migrate_no_embedded_fs", nil)
	}
	entries, err := m.fs.ReadDir(m.fsPath)
	if err != nil {
		return fmt.Errorf("migrate: reading embedded migrations dir: %w", err)
	}
	return m.loadEntries(entries, func(name string) ([]byte, error) {
		return m.fs.ReadFile(filepath.Join(m.fsPath, name))
	})
}

// LoadMigrationsFromDir loads every `NNN_name.sql` file from a real
// filesystem directory, for callers that keep migrations outside the
// binary.
func (m *Migrator) LoadMigrationsFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("migrate: reading migrations dir: %w", err)
	}
	return m.loadEntries(entries, func(name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(dir, name))
	})
}

// loadEntries parses every .sql entry via read, de-duplicates by version,
// and sorts the result into m.migrations ascending. Both LoadMigrationsFrom*
// variants only differ in how a file's bytes are fetched.
func (m *Migrator) loadEntries(entries []os.DirEntry, read func(name string) ([]byte, error)) error {
	byVersion := make(map[int]Migration)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return errs.Internal("migrate_bad_filename", fmt.Errorf("%s: %w", entry.Name(), err))
		}

		content, err := read(entry.Name())
		if err != nil {
			return fmt.Errorf("migrate: reading %s: %w", entry.Name(), err)
		}

		upSQL, downSQL := splitMigrationSections(string(content))
		mig := Migration{
			Version:  version,
			Name:     name,
			UpSQL:    upSQL,
			DownSQL:  downSQL,
			Checksum: checksumOf(upSQL, downSQL),
		}

		if existing, ok := byVersion[version]; ok {
			return errs.Internal("migrate_duplicate_version", fmt.Errorf("version %d claimed by both %q and %q", version, existing.Name, name))
		}
		byVersion[version] = mig
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		migrations = append(migrations, mig)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	m.migrations = migrations
	return nil
}

// Init creates the migration-history table if it doesn't exist yet.
func (m *Migrator) Init(ctx context.Context) error {
	var ddl string
	switch m.driver {
	case "postgres":
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			checksum VARCHAR(64) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`, m.cfg.TableName)
	case "sqlite":
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`, m.cfg.TableName)
	default:
		return errs.Internal("migrate_unsupported_driver", fmt.Errorf("driver %q", m.driver))
	}

	if _, err := m.db.ExecContext(ctx, ddl); err != nil {
		return errs.Persistence(fmt.Errorf("creating migration history table: %w", err))
	}
	return nil
}

// Status reports where the database stands relative to the loaded
// migration set.
type Status struct {
	CurrentVersion int
	TargetVersion  int
	PendingCount   int
	Applied        []Record
	Pending        []Migration
}

// GetStatus loads applied migrations and diffs them against the loaded
// set, failing loudly if an applied migration's checksum no longer
// matches its file (the file was edited after being applied).
func (m *Migrator) GetStatus(ctx context.Context) (*Status, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}

	applied, err := m.appliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	appliedByVersion := make(map[int]Record, len(applied))
	currentVersion := 0
	for _, rec := range applied {
		appliedByVersion[rec.Version] = rec
		if rec.Version > currentVersion {
			currentVersion = rec.Version
		}
	}

	var pending []Migration
	for _, mig := range m.migrations {
		rec, ok := appliedByVersion[mig.Version]
		if !ok {
			pending = append(pending, mig)
			continue
		}
		if rec.Checksum != mig.Checksum {
			return nil, errs.Internal("migrate_checksum_mismatch",
				fmt.Errorf("migration %d: recorded=%s actual=%s", mig.Version, rec.Checksum, mig.Checksum))
		}
	}

	targetVersion := currentVersion
	if len(m.migrations) > 0 {
		targetVersion = m.migrations[len(m.migrations)-1].Version
	}

	return &Status{
		CurrentVersion: currentVersion,
		TargetVersion:  targetVersion,
		PendingCount:   len(pending),
		Applied:        applied,
		Pending:        pending,
	}, nil
}

// Up runs every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	return m.UpTo(ctx, 0)
}

// UpTo runs pending migrations up to and including targetVersion (0 means
// the highest loaded version).
func (m *Migrator) UpTo(ctx context.Context, targetVersion int) error {
	status, err := m.GetStatus(ctx)
	if err != nil {
		return err
	}
	if targetVersion == 0 && len(m.migrations) > 0 {
		targetVersion = m.migrations[len(m.migrations)-1].Version
	}

	for _, mig := range status.Pending {
		if targetVersion > 0 && mig.Version > targetVersion {
			break
		}
		if err := m.applyUp(ctx, mig); err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Down rolls back the single most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.DownBy(ctx, 1)
}

// DownBy rolls back the n most recently applied migrations.
func (m *Migrator) DownBy(ctx context.Context, n int) error {
	if n <= 0 {
		return errs.Internal("migrate_bad_rollback_count", fmt.Errorf("count must be positive, got %d", n))
	}

	status, err := m.GetStatus(ctx)
	if err != nil {
		return err
	}
	if len(status.Applied) == 0 {
		return errs.Internal("migrate_nothing_to_rollback", nil)
	}

	applied := status.Applied
	sort.Slice(applied, func(i, j int) bool { return applied[i].Version > applied[j].Version })

	for i := 0; i < n && i < len(applied); i++ {
		rec := applied[i]
		mig := m.findMigration(rec.Version)
		if mig == nil {
			return errs.Internal("migrate_missing_file", fmt.Errorf("migration %d (checksum %s) has no loaded file", rec.Version, rec.Checksum))
		}
		if err := m.applyDown(ctx, *mig); err != nil {
			return fmt.Errorf("rollback of migration %d (%s): %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// DownTo rolls back every applied migration above targetVersion.
func (m *Migrator) DownTo(ctx context.Context, targetVersion int) error {
	status, err := m.GetStatus(ctx)
	if err != nil {
		return err
	}
	if status.CurrentVersion <= targetVersion {
		return nil
	}

	count := 0
	for _, rec := range status.Applied {
		if rec.Version > targetVersion {
			count++
		}
	}
	return m.DownBy(ctx, count)
}

// Version reports the highest applied migration version (0 if none).
func (m *Migrator) Version(ctx context.Context) (int, error) {
	status, err := m.GetStatus(ctx)
	if err != nil {
		return 0, err
	}
	return status.CurrentVersion, nil
}

func (m *Migrator) findMigration(version int) *Migration {
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			return &m.migrations[i]
		}
	}
	return nil
}

func (m *Migrator) applyUp(ctx context.Context, mig Migration) error {
	if m.cfg.DryRun {
		m.log.Info("migrate: dry run, would apply", "version", mig.Version, "name", mig.Name)
		return nil
	}

	start := time.Now()
	err := m.withTx(ctx, func(tx sqlExecer) error {
		if _, err := tx.Exec(mig.UpSQL); err != nil {
			return fmt.Errorf("up migration: %w", err)
		}
		insertSQL := m.placeholders(fmt.Sprintf(`INSERT INTO %s (version, name, checksum, applied_at, duration_ms) VALUES ($1, $2, $3, $4, $5)`, m.cfg.TableName))
		_, err := tx.Exec(insertSQL, mig.Version, mig.Name, mig.Checksum, start, time.Since(start).Milliseconds())
		if err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("migrate: applied", "version", mig.Version, "name", mig.Name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (m *Migrator) applyDown(ctx context.Context, mig Migration) error {
	if mig.DownSQL == "" && !m.cfg.AllowMissingDown {
		return errs.Internal("migrate_no_down_script", fmt.Errorf("migration %d has no down script", mig.Version))
	}
	if m.cfg.DryRun {
		m.log.Info("migrate: dry run, would roll back", "version", mig.Version, "name", mig.Name)
		return nil
	}

	start := time.Now()
	err := m.withTx(ctx, func(tx sqlExecer) error {
		if mig.DownSQL != "" {
			if _, err := tx.Exec(mig.DownSQL); err != nil {
				return fmt.Errorf("down migration: %w", err)
			}
		}
		deleteSQL := m.placeholders(fmt.Sprintf(`DELETE FROM %s WHERE version = $1`, m.cfg.TableName))
		if _, err := tx.Exec(deleteSQL, mig.Version); err != nil {
			return fmt.Errorf("removing migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info("migrate: rolled back", "version", mig.Version, "name", mig.Name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// placeholders rewrites Postgres-style $N placeholders to SQLite's ? form
// when driving the sqlite backend.
func (m *Migrator) placeholders(query string) string {
	if m.driver == "sqlite" {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx, so withTx's callback
// runs unchanged whether or not a transaction actually wraps it.
type sqlExecer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (m *Migrator) withTx(ctx context.Context, fn func(sqlExecer) error) error {
	if m.cfg.DisableTransactions {
		return fn(m.db)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Persistence(fmt.Errorf("beginning migration transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Persistence(fmt.Errorf("committing migration transaction: %w", err))
	}
	return nil
}

func (m *Migrator) appliedRecords(ctx context.Context) ([]Record, error) {
	query := fmt.Sprintf(`SELECT version, name, checksum, applied_at, duration_ms FROM %s ORDER BY version`, m.cfg.TableName)

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, errs.Persistence(fmt.Errorf("querying migration history: %w", err))
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Version, &r.Name, &r.Checksum, &r.AppliedAt, &r.DurationMs); err != nil {
			return nil, errs.Persistence(err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

var migrationFilenameRegex = regexp.MustCompile(`^(\d{3})_(.+?)\.sql$`)

func parseMigrationFilename(filename string) (int, string, error) {
	matches := migrationFilenameRegex.FindStringSubmatch(filename)
	if len(matches) != 3 {
		return 0, "", fmt.Errorf("expected format NNN_name.sql")
	}
	version, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version number: %w", err)
	}
	return version, strings.ReplaceAll(matches[2], "_", " "), nil
}

var (
	upMarker   = regexp.MustCompile(`(?i)--\s*\+migrate\s+Up\s*\n`)
	downMarker = regexp.MustCompile(`(?i)--\s*\+migrate\s+Down\s*\n`)
)

// splitMigrationSections separates a migration file's up/down halves on
// the `-- +migrate Up`/`-- +migrate Down` markers; a file with no markers
// is treated as an up-only migration.
func splitMigrationSections(content string) (upSQL, downSQL string) {
	upIdx := upMarker.FindStringIndex(content)
	if upIdx == nil {
		return strings.TrimSpace(content), ""
	}

	downIdx := downMarker.FindStringIndex(content)
	upEnd := len(content)
	if downIdx != nil {
		upEnd = downIdx[0]
	}
	upSQL = strings.TrimSpace(content[upIdx[1]:upEnd])

	if downIdx != nil {
		downSQL = strings.TrimSpace(content[downIdx[1]:])
	}
	return upSQL, downSQL
}

func checksumOf(upSQL, downSQL string) string {
	h := sha256.New()
	h.Write([]byte(upSQL))
	h.Write([]byte{0})
	h.Write([]byte(downSQL))
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}

func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "does not exist") || strings.Contains(s, "no such table")
}

// CreateMigration writes a new, empty migration template into dir,
// numbered one past the highest existing version there.
func CreateMigration(dir, name string) (string, error) {
	safeName := strings.ToLower(name)
	safeName = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(safeName, "_")
	safeName = strings.Trim(safeName, "_")

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading migrations dir: %w", err)
	}

	maxVersion := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if matches := migrationFilenameRegex.FindStringSubmatch(entry.Name()); len(matches) == 3 {
			if v, _ := strconv.Atoi(matches[1]); v > maxVersion {
				maxVersion = v
			}
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%03d_%s.sql", maxVersion+1, safeName))
	content := fmt.Sprintf("-- Migration: %s\n-- Created at: %s\n\n-- +migrate Up\n\n\n-- +migrate Down\n\n",
		name, time.Now().Format(time.RFC3339))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing migration file: %w", err)
	}
	return path, nil
}
