// Package pipeline runs a complete analysis: walk, per-file analysis,
// directory aggregation, report assembly and output writing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/archdoc/internal/aggregate"
	"github.com/dshills/archdoc/internal/analysis"
	"github.com/dshills/archdoc/internal/config"
	"github.com/dshills/archdoc/internal/metrics"
	"github.com/dshills/archdoc/internal/report"
	"github.com/dshills/archdoc/internal/scheduler"
	"github.com/dshills/archdoc/internal/storage"
	"github.com/dshills/archdoc/internal/store"
	"github.com/dshills/archdoc/internal/walker"
	"github.com/dshills/archdoc/pkg/types"
)

// Outcome summarizes a finished run
type Outcome struct {
	RunID     string
	Tree      *walker.Tree
	Schedule  *scheduler.Statistics
	Aggregate *aggregate.Statistics
	Overview  *aggregate.Statistics
	Report    *report.Report
	OutputDir string
	Duration  time.Duration
}

type options struct {
	analyzer analysis.Analyzer
	storage  storage.Storage
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a run
type Option func(*options)

// WithAnalyzer uses a instead of building one from the config.
// The caller keeps ownership and closes it.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(o *options) { o.analyzer = a }
}

// WithStorage uses s instead of opening the database at cfg.DBPath.
// The caller keeps ownership and closes it.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithLogger sets the logger for every stage
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records stage metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Run executes one analysis run described by cfg, which must have been
// finalized. Per-file and per-directory failures are recorded, not returned.
// The returned error is non-nil for an invalid configuration, an unreadable
// project root, a store conflict, a barrier violation, cancellation or an
// I/O failure; in those cases no report is written.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (*Outcome, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	tree, err := walker.Walk(cfg.ProjectDir, cfg.WalkerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to walk project: %w", err)
	}
	logger.Info("walked project",
		slog.String("root", tree.Root),
		slog.Int("files", tree.FileCount()),
		slog.Int("directories", tree.DirectoryCount()),
		slog.Int("access_errors", len(tree.Errors)))

	if err := cfg.ValidateStartFrom(tree.FileCount()); err != nil {
		return nil, err
	}

	analyzer := o.analyzer
	if analyzer == nil {
		a, err := analysis.New(withLogger(cfg.AnalysisConfig(), logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer: %w", err)
		}
		defer func() { _ = a.Close() }()
		analyzer = a
	}

	db := o.storage
	if db == nil {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		sqlite, err := storage.NewSQLiteStorage(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		defer func() { _ = sqlite.Close() }()
		db = sqlite
	}

	// Results are scoped to the project root; a database may be shared
	st := store.New(storage.ForProject(db, tree.Root))
	if err := st.Load(ctx); err != nil {
		return nil, err
	}
	for _, rec := range tree.Errors {
		rec.RunID = runID
		st.RecordError(rec)
	}

	run := &storage.Run{
		ID:          runID,
		ProjectRoot: tree.Root,
		StartFrom:   cfg.StartFrom,
		Workers:     cfg.Workers,
		Provider:    analyzer.Provider(),
		Model:       analyzer.Model(),
		FilesTotal:  tree.FileCount(),
	}
	if err := db.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	outcome := &Outcome{RunID: runID, Tree: tree, OutputDir: cfg.OutputDir}
	fail := func(err error) (*Outcome, error) {
		// Keep completed work even when the run is cancelled
		bg := context.WithoutCancel(ctx)
		if ferr := st.Flush(bg); ferr != nil {
			logger.Error("failed to flush results", slog.Any("error", ferr))
		}
		run.Status = storage.RunFailed
		run.Error = err.Error()
		run.FilesFailed = countFailedFiles(tree, st)
		if ferr := db.FinishRun(bg, run); ferr != nil {
			logger.Error("failed to record run outcome", slog.Any("error", ferr))
		}
		logger.Error("run failed", slog.Any("error", err))
		return outcome, err
	}

	sched := scheduler.New(analyzer, st, scheduler.Config{
		Workers:           cfg.Workers,
		StartFrom:         cfg.StartFrom,
		Retry:             cfg.RetryPolicy(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		StripComments:     cfg.StripComments,
		ContextDoc:        cfg.Context,
		RunID:             runID,
		Logger:            logger,
		Metrics:           o.metrics,
	})
	outcome.Schedule, err = sched.Run(ctx, tree.Files())
	if err != nil {
		return fail(fmt.Errorf("scheduling failed: %w", err))
	}
	if err := st.Flush(ctx); err != nil {
		return fail(err)
	}

	agg := aggregate.New(analyzer, st, aggregate.Config{
		ModuleName: cfg.ModuleName,
		Retry:      cfg.RetryPolicy(),
		ContextDoc: cfg.Context,
		RunID:      runID,
		Logger:     logger,
		Metrics:    o.metrics,
	})
	outcome.Aggregate, err = agg.Aggregate(ctx, tree)
	if err != nil {
		return fail(fmt.Errorf("aggregation failed: %w", err))
	}
	if err := st.Flush(ctx); err != nil {
		return fail(err)
	}

	outcome.Overview, err = agg.Overview(ctx, tree)
	if err != nil {
		return fail(fmt.Errorf("project overview failed: %w", err))
	}
	if err := st.Flush(ctx); err != nil {
		return fail(err)
	}

	rep := report.Build(tree, st, report.Options{Title: cfg.Title, Context: cfg.Context})
	if err := report.NewWriter(cfg.OutputDir, logger).Write(tree, st, rep); err != nil {
		return fail(fmt.Errorf("failed to write outputs: %w", err))
	}
	outcome.Report = rep

	run.Status = storage.RunCompleted
	run.FilesFailed = countFailedFiles(tree, st)
	if err := db.FinishRun(ctx, run); err != nil {
		return outcome, fmt.Errorf("failed to record run outcome: %w", err)
	}

	outcome.Duration = time.Since(startTime)
	logger.Info("run complete",
		slog.Int("files", tree.FileCount()),
		slog.Int("files_failed", run.FilesFailed),
		slog.Int("errors", len(rep.Errors)),
		slog.String("output", cfg.OutputDir),
		slog.Duration("duration", outcome.Duration))
	return outcome, nil
}

func withLogger(c analysis.Config, logger *slog.Logger) analysis.Config {
	c.Logger = logger
	return c
}

func countFailedFiles(tree *walker.Tree, st *store.Store) int {
	n := 0
	for _, f := range tree.Files() {
		if r, ok := st.Get(f.ID); !ok || r.Status == types.StatusFailed {
			n++
		}
	}
	return n
}

// IsFatal reports whether err stopped a run rather than being recorded
func IsFatal(err error) bool {
	return errors.Is(err, config.ErrInvalidConfig) ||
		errors.Is(err, store.ErrConflict) ||
		errors.Is(err, aggregate.ErrBarrier)
}
