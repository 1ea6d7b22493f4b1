// Package storage provides SQLite-based persistence for analysis runs.
//
// The storage layer manages:
//   - Run metadata (start_from, worker count, provider, outcome)
//   - One analysis result per file or directory identity within a project
//     root, plus the project overview
//   - The append-only log of failed attempts
//
// # Database Schema
//
// Tables:
//   - runs: One row per pipeline invocation
//   - results: Latest result per (project_root, identity), success or failed
//   - error_records: Every failed attempt, tagged with its project and run
//
// Several projects may share one database; every result and error
// operation takes the project root it belongs to.
//
// A stored success is never overwritten; SaveResults enforces this in the
// upsert itself. Stale directory summaries and overviews are deleted
// before being saved again.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("technical_analysis/archdoc.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	results, err := db.LoadResults(ctx, "/path/to/project")
//
// ForProject binds a Storage to one project root; the returned scope
// satisfies store.Persister, so a result store can be loaded from and
// flushed to it directly.
//
// # Build Tags
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
