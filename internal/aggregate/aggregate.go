// Package aggregate folds per-file results into per-directory summaries,
// children before parents, and the directory summaries into one
// project-level architecture overview.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dshills/archdoc/internal/analysis"
	"github.com/dshills/archdoc/internal/metrics"
	"github.com/dshills/archdoc/internal/retry"
	"github.com/dshills/archdoc/internal/store"
	"github.com/dshills/archdoc/internal/walker"
	"github.com/dshills/archdoc/pkg/types"
)

// ErrBarrier is returned when a directory is reached before all of its
// children have a result
var ErrBarrier = errors.New("directory has unresolved children")

// Config contains configuration for the aggregator
type Config struct {
	ModuleName string // Names the project in the overview request
	Retry      retry.Policy
	ContextDoc string
	RunID      string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Statistics contains statistics about an aggregation pass
type Statistics struct {
	Directories int
	Summarized  int // Summaries produced by a call in this pass
	Reused      int // Stored summaries kept unchanged
	Empty       int // Directories without children
	Failed      int
	Calls       int
	Duration    time.Duration
}

// Aggregator produces directory summaries from stored child results
type Aggregator struct {
	analyzer analysis.Analyzer
	store    *store.Store
	cfg      Config
	logger   *slog.Logger
}

// New creates a new Aggregator instance
func New(analyzer analysis.Analyzer, st *store.Store, cfg Config) *Aggregator {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy(analysis.Retryable)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		analyzer: analyzer,
		store:    st,
		cfg:      cfg,
		logger:   logger,
	}
}

// Aggregate visits every directory of tree in post-order and records its
// summary. A failed directory call is recorded and the pass continues; a
// barrier violation or cancellation stops it.
func (a *Aggregator) Aggregate(ctx context.Context, tree *walker.Tree) (*Statistics, error) {
	startTime := time.Now()
	stats := &Statistics{}

	for d := range tree.PostOrder() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Directories++

		if !a.store.AllChildrenResolved(d) {
			return stats, fmt.Errorf("%w: %s", ErrBarrier, d.ID)
		}

		if existing, ok := a.store.Get(d.ID); ok && existing.Succeeded() {
			if !a.stale(d, existing) {
				stats.Reused++
				continue
			}
			a.logger.Debug("recomputing stale summary", slog.String("dir", d.ID))
			if err := a.store.Invalidate(d.ID); err != nil {
				return stats, err
			}
		}

		if err := a.summarize(ctx, d, stats); err != nil {
			return stats, err
		}
	}

	stats.Duration = time.Since(startTime)
	a.logger.Info("aggregation complete",
		slog.Int("directories", stats.Directories),
		slog.Int("summarized", stats.Summarized),
		slog.Int("reused", stats.Reused),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// stale reports whether any child result is newer than the summary
func (a *Aggregator) stale(d *walker.Directory, summary types.AnalysisResult) bool {
	for _, id := range d.ChildIDs() {
		child, ok := a.store.Get(id)
		if ok && child.CompletedAt.After(summary.CompletedAt) {
			return true
		}
	}
	return false
}

func (a *Aggregator) summarize(ctx context.Context, d *walker.Directory, stats *Statistics) error {
	if len(d.Files) == 0 && len(d.Dirs) == 0 {
		stats.Empty++
		return a.store.Put(types.AnalysisResult{
			ID:          d.ID,
			Kind:        types.KindDirectory,
			Status:      types.StatusSuccess,
			RunID:       a.cfg.RunID,
			CompletedAt: time.Now(),
		})
	}

	req := analysis.Request{
		Kind:    analysis.KindDirectory,
		Path:    d.ID,
		Context: a.cfg.ContextDoc,
		Content: BuildContext(d, a.store.Get),
	}

	return a.record(ctx, req, d.ID, types.KindDirectory, stats)
}

// Overview records the project-level architecture overview built from
// every directory summary. A stored overview is reused unless the root
// summary completed after it. Aggregate must have run first.
func (a *Aggregator) Overview(ctx context.Context, tree *walker.Tree) (*Statistics, error) {
	startTime := time.Now()
	stats := &Statistics{}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	root, ok := a.store.Get(types.RootID)
	if !ok {
		return stats, fmt.Errorf("%w: %s", ErrBarrier, types.ProjectID)
	}
	if existing, ok := a.store.Get(types.ProjectID); ok && existing.Succeeded() {
		if !root.CompletedAt.After(existing.CompletedAt) {
			stats.Reused++
			return stats, nil
		}
		a.logger.Debug("recomputing stale project overview")
		if err := a.store.Invalidate(types.ProjectID); err != nil {
			return stats, err
		}
	}

	req := analysis.Request{
		Kind:    analysis.KindProject,
		Path:    types.ProjectID,
		Context: a.cfg.ContextDoc,
		Content: BuildOverviewContext(a.cfg.ModuleName, tree, a.store.Get),
	}
	if err := a.record(ctx, req, types.ProjectID, types.KindProject, stats); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(startTime)
	a.logger.Info("project overview complete",
		slog.Int("summarized", stats.Summarized),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// record performs the call for req with retries and stores its outcome
// under id. A failed call is recorded, not returned; only cancellation and
// store errors stop the caller.
func (a *Aggregator) record(ctx context.Context, req analysis.Request, id string, kind types.ResultKind, stats *Statistics) error {
	text, attempts, err := retry.Do(ctx, a.cfg.Retry, func(ctx context.Context, attempt int) (string, error) {
		if attempt > 1 {
			a.cfg.Metrics.RecordRetry(string(req.Kind))
		}
		done := a.cfg.Metrics.CallStarted()
		start := time.Now()
		text, err := a.analyzer.Analyze(ctx, req)
		done()
		stats.Calls++
		a.cfg.Metrics.RecordCall(string(req.Kind), err, time.Since(start))
		return text, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.Failed++
		a.logger.Warn("summary failed",
			slog.String("id", id),
			slog.String("kind", string(kind)),
			slog.Int("attempts", attempts),
			slog.Any("error", err))

		now := time.Now()
		errKind := analysis.KindOf(err)
		if perr := a.store.Put(types.AnalysisResult{
			ID:          id,
			Kind:        kind,
			Status:      types.StatusFailed,
			ErrorKind:   errKind,
			Message:     err.Error(),
			Attempts:    attempts,
			RunID:       a.cfg.RunID,
			CompletedAt: now,
		}); perr != nil {
			return perr
		}
		a.store.RecordError(types.ErrorRecord{
			ID:        id,
			Attempt:   attempts,
			Kind:      errKind,
			Message:   err.Error(),
			Timestamp: now,
			RunID:     a.cfg.RunID,
		})
		return nil
	}

	stats.Summarized++
	return a.store.Put(types.AnalysisResult{
		ID:          id,
		Kind:        kind,
		Status:      types.StatusSuccess,
		Text:        text,
		Attempts:    attempts,
		RunID:       a.cfg.RunID,
		CompletedAt: time.Now(),
	})
}

// FailureMarker renders the inline marker for a failed child result
func FailureMarker(r types.AnalysisResult) string {
	return fmt.Sprintf("[FAILED: %s - %s]", r.ErrorKind, r.Message)
}

// BuildContext synthesizes the analysis input of a directory: every direct
// child in fixed order, files first, each followed by its result text or a
// failure marker.
func BuildContext(d *walker.Directory, lookup func(id string) (types.AnalysisResult, bool)) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Directory: %s\n", d.ID)
	fmt.Fprintf(&b, "Files: %d\n", len(d.Files))
	fmt.Fprintf(&b, "Subdirectories: %d\n", len(d.Dirs))

	write := func(label, id string) {
		fmt.Fprintf(&b, "\n### %s: %s\n", label, id)
		r, ok := lookup(id)
		switch {
		case !ok:
			b.WriteString(FailureMarker(types.AnalysisResult{
				ErrorKind: types.ErrorKindNotAnalyzed,
				Message:   "no result",
			}))
		case r.Succeeded():
			b.WriteString(strings.TrimSpace(r.Text))
		default:
			b.WriteString(FailureMarker(r))
		}
		b.WriteString("\n")
	}

	for _, id := range d.Files {
		write("File", id)
	}
	for _, sub := range d.Dirs {
		write("Directory", sub.ID)
	}
	return b.String()
}

// BuildOverviewContext synthesizes the analysis input of the project
// overview: the module name followed by every directory summary in
// pre-order. Empty directories are left out.
func BuildOverviewContext(moduleName string, tree *walker.Tree, lookup func(id string) (types.AnalysisResult, bool)) string {
	var b strings.Builder
	if moduleName != "" {
		fmt.Fprintf(&b, "Module: %s\n", moduleName)
	}
	fmt.Fprintf(&b, "Directories: %d\n", tree.DirectoryCount())

	for d := range tree.PreOrder() {
		r, ok := lookup(d.ID)
		switch {
		case !ok:
			fmt.Fprintf(&b, "\n### Directory: %s\n", d.ID)
			b.WriteString(FailureMarker(types.AnalysisResult{
				ErrorKind: types.ErrorKindNotAnalyzed,
				Message:   "no result",
			}))
		case r.Succeeded():
			text := strings.TrimSpace(r.Text)
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "\n### Directory: %s\n", d.ID)
			b.WriteString(text)
		default:
			fmt.Fprintf(&b, "\n### Directory: %s\n", d.ID)
			b.WriteString(FailureMarker(r))
		}
		b.WriteString("\n")
	}
	return b.String()
}
