package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Runs table
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    project_root TEXT NOT NULL,
    start_from INTEGER NOT NULL DEFAULT 0,
    workers INTEGER NOT NULL DEFAULT 1,
    provider TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    files_total INTEGER NOT NULL DEFAULT 0,
    files_failed INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

-- Results table: one row per file or directory identity
CREATE TABLE IF NOT EXISTS results (
    identity TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('file', 'directory')),
    status TEXT NOT NULL CHECK (status IN ('success', 'failed')),
    text TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL DEFAULT '',
    completed_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_results_kind ON results(kind);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);

-- Error records: append-only log of failed attempts
CREATE TABLE IF NOT EXISTS error_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    identity TEXT NOT NULL,
    attempt INTEGER NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_error_records_run ON error_records(run_id);
CREATE INDEX IF NOT EXISTS idx_error_records_identity ON error_records(identity);
`

const migrationV1Down = `
DROP TABLE IF EXISTS error_records;
DROP TABLE IF EXISTS results;
DROP TABLE IF EXISTS runs;
`

// Version 1.1.0 scopes results and error records to a project root so that
// several projects can share one database, and admits the project overview
// kind. Existing rows take the root of the run that produced them.
const migrationV11Up = `
CREATE TABLE results_v11 (
    project_root TEXT NOT NULL DEFAULT '',
    identity TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('file', 'directory', 'project')),
    status TEXT NOT NULL CHECK (status IN ('success', 'failed')),
    text TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL DEFAULT '',
    completed_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project_root, identity)
);

INSERT INTO results_v11 (project_root, identity, kind, status, text, error_kind, message, attempts, run_id, completed_at)
SELECT COALESCE((SELECT project_root FROM runs WHERE runs.id = results.run_id), ''),
       identity, kind, status, text, error_kind, message, attempts, run_id, completed_at
FROM results;

DROP TABLE results;
ALTER TABLE results_v11 RENAME TO results;

CREATE INDEX IF NOT EXISTS idx_results_kind ON results(project_root, kind);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(project_root, status);

ALTER TABLE error_records ADD COLUMN project_root TEXT NOT NULL DEFAULT '';
UPDATE error_records
SET project_root = COALESCE((SELECT project_root FROM runs WHERE runs.id = error_records.run_id), '');
CREATE INDEX IF NOT EXISTS idx_error_records_project ON error_records(project_root);

CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_root, started_at);
`

// Rolling back keeps the most recent result of each identity and drops
// project overviews
const migrationV11Down = `
DROP INDEX IF EXISTS idx_runs_project;
DROP INDEX IF EXISTS idx_error_records_project;
ALTER TABLE error_records DROP COLUMN project_root;

CREATE TABLE results_v10 (
    identity TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK (kind IN ('file', 'directory')),
    status TEXT NOT NULL CHECK (status IN ('success', 'failed')),
    text TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    run_id TEXT NOT NULL DEFAULT '',
    completed_at INTEGER NOT NULL DEFAULT 0
);

INSERT OR REPLACE INTO results_v10 (identity, kind, status, text, error_kind, message, attempts, run_id, completed_at)
SELECT identity, kind, status, text, error_kind, message, attempts, run_id, completed_at
FROM results
WHERE kind != 'project'
ORDER BY completed_at;

DROP TABLE results;
ALTER TABLE results_v10 RENAME TO results;

CREATE INDEX IF NOT EXISTS idx_results_kind ON results(kind);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
`

// schemaVersion returns the highest recorded schema version, or 0.0.0 when
// no migration has been applied. applied_at has one-second resolution, so
// the order of versions applied together is decided by semver.
func schemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	current := semver.MustParse("0.0.0")

	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return current, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		version, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("invalid current schema version %s: %w", v, err)
		}
		if version.GreaterThan(current) {
			current = version
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	// Run migrations in order
	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		// Skip if already applied (LessThanOrEqual means current >= migration)
		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		// Execute migration
		_, err = db.ExecContext(ctx, migration.Up)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		// Record migration
		_, err = db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version)
		if err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		// Update current version for next iteration
		currentVersion = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	// Get current version
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}
	currentVersion := version.Original()

	// Find migration
	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == currentVersion {
			migration = &AllMigrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	// Execute rollback
	_, err = db.ExecContext(ctx, migration.Down)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	// Remove version record
	_, err = db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", currentVersion)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", currentVersion, err)
	}

	return nil
}
