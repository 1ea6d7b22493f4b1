package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/archdoc/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Run operations

func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	query := `
		INSERT INTO runs (id, project_root, start_from, workers, provider, model, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.ProjectRoot, run.StartFrom, run.Workers,
		run.Provider, run.Model, run.Status, toUnix(run.StartedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: run %s", ErrAlreadyExists, run.ID)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	query := `
		UPDATE runs
		SET status = ?, files_total = ?, files_failed = ?, error = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		run.Status, run.FilesTotal, run.FilesFailed, run.Error, toUnix(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, project_root, start_from, workers, provider, model, status,
	files_total, files_failed, error, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var run Run
	var started, finished int64
	var errText sql.NullString
	err := row.Scan(&run.ID, &run.ProjectRoot, &run.StartFrom, &run.Workers,
		&run.Provider, &run.Model, &run.Status, &run.FilesTotal, &run.FilesFailed,
		&errText, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Error = errText.String
	run.StartedAt = fromUnix(started)
	run.FinishedAt = fromUnix(finished)
	return &run, nil
}

func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	return scanRun(row)
}

// LatestRun returns the most recent run of projectRoot, or of any project
// when projectRoot is empty
func (s *SQLiteStorage) LatestRun(ctx context.Context, projectRoot string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+` FROM runs
		WHERE ? = '' OR project_root = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`, projectRoot, projectRoot)
	return scanRun(row)
}

// Result operations

func (s *SQLiteStorage) LoadResults(ctx context.Context, projectRoot string) ([]types.AnalysisResult, error) {
	query := `
		SELECT identity, kind, status, text, error_kind, message, attempts, run_id, completed_at
		FROM results
		WHERE project_root = ?
		ORDER BY identity
	`
	rows, err := s.db.QueryContext(ctx, query, projectRoot)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.AnalysisResult, 0)
	for rows.Next() {
		var r types.AnalysisResult
		var kind, status, errKind string
		var completed int64
		if err := rows.Scan(&r.ID, &kind, &status, &r.Text, &errKind, &r.Message,
			&r.Attempts, &r.RunID, &completed); err != nil {
			return nil, err
		}
		r.Kind = types.ResultKind(kind)
		r.Status = types.Status(status)
		r.ErrorKind = types.ErrorKind(errKind)
		r.CompletedAt = fromUnix(completed)
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveResults upserts results in one transaction. A stored Success row is
// never replaced; a stale summary must be deleted before it is saved again.
func (s *SQLiteStorage) SaveResults(ctx context.Context, projectRoot string, results []types.AnalysisResult) error {
	query := `
		INSERT INTO results (project_root, identity, kind, status, text, error_kind, message, attempts, run_id, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_root, identity) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			text = excluded.text,
			error_kind = excluded.error_kind,
			message = excluded.message,
			attempts = excluded.attempts,
			run_id = excluded.run_id,
			completed_at = excluded.completed_at
		WHERE results.status != 'success'
	`
	return s.withTx(ctx, func(q querier) error {
		for _, r := range results {
			_, err := q.ExecContext(ctx, query,
				projectRoot, r.ID, string(r.Kind), string(r.Status), r.Text, string(r.ErrorKind),
				r.Message, r.Attempts, r.RunID, toUnix(r.CompletedAt))
			if err != nil {
				return fmt.Errorf("failed to save result %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) DeleteResults(ctx context.Context, projectRoot string, ids []string) error {
	return s.withTx(ctx, func(q querier) error {
		for _, id := range ids {
			_, err := q.ExecContext(ctx, "DELETE FROM results WHERE project_root = ? AND identity = ?", projectRoot, id)
			if err != nil {
				return fmt.Errorf("failed to delete result %s: %w", id, err)
			}
		}
		return nil
	})
}

// Error record operations

func (s *SQLiteStorage) SaveErrors(ctx context.Context, projectRoot string, records []types.ErrorRecord) error {
	query := `
		INSERT INTO error_records (project_root, identity, attempt, kind, message, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return s.withTx(ctx, func(q querier) error {
		for _, rec := range records {
			_, err := q.ExecContext(ctx, query,
				projectRoot, rec.ID, rec.Attempt, string(rec.Kind), rec.Message, rec.RunID, toUnix(rec.Timestamp))
			if err != nil {
				return fmt.Errorf("failed to save error record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// ListErrors returns the error records of a run, or of all runs when runID is empty
func (s *SQLiteStorage) ListErrors(ctx context.Context, runID string) ([]types.ErrorRecord, error) {
	query := `
		SELECT identity, attempt, kind, message, run_id, recorded_at
		FROM error_records
		WHERE ? = '' OR run_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, runID, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]types.ErrorRecord, 0)
	for rows.Next() {
		var rec types.ErrorRecord
		var kind string
		var recorded int64
		if err := rows.Scan(&rec.ID, &rec.Attempt, &kind, &rec.Message, &rec.RunID, &recorded); err != nil {
			return nil, err
		}
		rec.Kind = types.ErrorKind(kind)
		rec.Timestamp = fromUnix(recorded)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Status operations

// GetStatus summarizes what is stored for projectRoot, or for the whole
// database when projectRoot is empty
func (s *SQLiteStorage) GetStatus(ctx context.Context, projectRoot string) (*ProjectStatus, error) {
	status := &ProjectStatus{}

	run, err := s.LatestRun(ctx, projectRoot)
	switch {
	case err == nil:
		status.LastRun = run
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs WHERE (? = '' OR project_root = ?)", &status.Runs},
		{"SELECT COUNT(*) FROM results WHERE (? = '' OR project_root = ?) AND kind = 'file'", &status.FileResults},
		{"SELECT COUNT(*) FROM results WHERE (? = '' OR project_root = ?) AND kind = 'directory'", &status.DirectoryResults},
		{"SELECT COUNT(*) FROM results WHERE (? = '' OR project_root = ?) AND status = 'failed'", &status.FailedResults},
		{"SELECT COUNT(*) FROM error_records WHERE (? = '' OR project_root = ?)", &status.ErrorRecords},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, projectRoot, projectRoot).Scan(c.dest); err != nil {
			return nil, err
		}
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	return status, nil
}
