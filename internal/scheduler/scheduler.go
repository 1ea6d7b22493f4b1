// Package scheduler dispatches per-file analysis calls over a fixed pool of
// workers.
//
// Workers pull ordinals from a shared cursor, so every file is claimed by
// exactly one worker and at most Workers calls are in flight. A file failure
// is recorded in the store and never stops the pool; only a store conflict or
// cancellation ends a run early.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dshills/archdoc/internal/analysis"
	"github.com/dshills/archdoc/internal/metrics"
	"github.com/dshills/archdoc/internal/retry"
	"github.com/dshills/archdoc/internal/store"
	"github.com/dshills/archdoc/internal/walker"
	"github.com/dshills/archdoc/pkg/types"
)

// ErrStartFromRange is returned when StartFrom lies outside [0, file count]
var ErrStartFromRange = errors.New("start_from out of range")

// Config contains configuration for the scheduler
type Config struct {
	Workers   int // Number of concurrent workers (default: runtime.NumCPU())
	StartFrom int // Files with a lower ordinal are not dispatched
	Retry     retry.Policy

	// RequestsPerSecond caps the call rate across all workers (0: unlimited)
	RequestsPerSecond float64
	Burst             int

	StripComments bool   // Run walker.Preprocess on file content
	ContextDoc    string // Project context document sent with every call
	RunID         string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Statistics contains statistics about a scheduler run
type Statistics struct {
	FilesTotal       int
	FilesAnalyzed    int // Success recorded in this run
	FilesEmpty       int // Success recorded without a call, nothing left to analyse
	FilesSkipped     int // Already resolved before this run
	FilesFailed      int // Failed recorded in this run
	FilesNotAnalyzed int // Below StartFrom with no prior result
	Calls            int
	Duration         time.Duration
}

type counters struct {
	analyzed    atomic.Int32
	empty       atomic.Int32
	skipped     atomic.Int32
	failed      atomic.Int32
	notAnalyzed atomic.Int32
	calls       atomic.Int32
}

// Scheduler runs the per-file protocol for a list of files
type Scheduler struct {
	analyzer analysis.Analyzer
	store    *store.Store
	cfg      Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a new Scheduler instance
func New(analyzer analysis.Analyzer, st *store.Store, cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy(analysis.Retryable)
	}

	s := &Scheduler{
		analyzer: analyzer,
		store:    st,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// Run resolves every file in files, which must be in ordinal order.
// Per-file failures are recorded in the store; the returned error is
// non-nil only for a store conflict, an out-of-range StartFrom or
// cancellation.
func (s *Scheduler) Run(ctx context.Context, files []walker.SourceFile) (*Statistics, error) {
	if s.cfg.StartFrom < 0 || s.cfg.StartFrom > len(files) {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrStartFromRange, s.cfg.StartFrom, len(files))
	}

	startTime := time.Now()
	workers := min(s.cfg.Workers, len(files))

	s.logger.Info("scheduling files",
		slog.Int("files", len(files)),
		slog.Int("workers", workers),
		slog.Int("start_from", s.cfg.StartFrom))

	var (
		c      counters
		cursor atomic.Int64
	)

	// Use errgroup for concurrent processing with error propagation
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(cursor.Add(1) - 1)
				if i >= len(files) {
					return nil
				}
				if err := s.process(gctx, files[i], &c); err != nil {
					return err
				}
			}
		})
	}

	err := g.Wait()

	stats := &Statistics{
		FilesTotal:       len(files),
		FilesAnalyzed:    int(c.analyzed.Load()),
		FilesEmpty:       int(c.empty.Load()),
		FilesSkipped:     int(c.skipped.Load()),
		FilesFailed:      int(c.failed.Load()),
		FilesNotAnalyzed: int(c.notAnalyzed.Load()),
		Calls:            int(c.calls.Load()),
		Duration:         time.Since(startTime),
	}

	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		return stats, err
	}

	s.logger.Info("scheduling complete",
		slog.Int("analyzed", stats.FilesAnalyzed),
		slog.Int("skipped", stats.FilesSkipped),
		slog.Int("failed", stats.FilesFailed),
		slog.Int("not_analyzed", stats.FilesNotAnalyzed),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// process resolves a single file
func (s *Scheduler) process(ctx context.Context, f walker.SourceFile, c *counters) error {
	if f.Ordinal < s.cfg.StartFrom {
		if _, ok := s.store.Get(f.ID); ok {
			c.skipped.Add(1)
			s.cfg.Metrics.RecordOutcome(metrics.OutcomeSkipped)
			return nil
		}
		c.notAnalyzed.Add(1)
		s.cfg.Metrics.RecordOutcome(metrics.OutcomeSkipped)
		return s.fail(f.ID, types.ErrorKindNotAnalyzed,
			fmt.Sprintf("ordinal %d below start_from %d", f.Ordinal, s.cfg.StartFrom), 0)
	}

	if s.store.HasSuccess(f.ID) {
		c.skipped.Add(1)
		s.cfg.Metrics.RecordOutcome(metrics.OutcomeSkipped)
		return nil
	}

	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		c.failed.Add(1)
		s.cfg.Metrics.RecordOutcome(metrics.OutcomeFailed)
		s.logger.Warn("failed to read file", slog.String("path", f.ID), slog.Any("error", err))
		return s.fail(f.ID, types.ErrorKindAccess, err.Error(), 1)
	}

	text := string(content)
	if s.cfg.StripComments {
		text = walker.Preprocess(text)
	}

	if strings.TrimSpace(text) == "" {
		c.analyzed.Add(1)
		c.empty.Add(1)
		s.cfg.Metrics.RecordOutcome(metrics.OutcomeSuccess)
		s.logger.Debug("empty file recorded without analysis", slog.String("path", f.ID))
		return s.store.Put(types.AnalysisResult{
			ID:          f.ID,
			Kind:        types.KindFile,
			Status:      types.StatusSuccess,
			RunID:       s.cfg.RunID,
			CompletedAt: time.Now(),
		})
	}

	req := analysis.Request{
		Kind:    analysis.KindFile,
		Path:    f.ID,
		Context: s.cfg.ContextDoc,
		Content: text,
	}

	result, attempts, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context, attempt int) (string, error) {
		return s.call(ctx, req, attempt, c)
	})
	if err != nil {
		// Cancellation leaves the file unresolved for the next run
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.failed.Add(1)
		s.cfg.Metrics.RecordOutcome(metrics.OutcomeFailed)
		s.logger.Warn("analysis failed",
			slog.String("path", f.ID),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return s.fail(f.ID, analysis.KindOf(err), err.Error(), attempts)
	}

	if err := s.store.Put(types.AnalysisResult{
		ID:          f.ID,
		Kind:        types.KindFile,
		Status:      types.StatusSuccess,
		Text:        result,
		Attempts:    attempts,
		RunID:       s.cfg.RunID,
		CompletedAt: time.Now(),
	}); err != nil {
		return err
	}
	c.analyzed.Add(1)
	s.cfg.Metrics.RecordOutcome(metrics.OutcomeSuccess)
	s.logger.Debug("file analyzed", slog.String("path", f.ID), slog.Int("attempts", attempts))
	return nil
}

// call performs one attempt against the analyzer
func (s *Scheduler) call(ctx context.Context, req analysis.Request, attempt int, c *counters) (string, error) {
	if attempt > 1 {
		s.cfg.Metrics.RecordRetry(string(req.Kind))
		s.logger.Debug("retrying analysis", slog.String("path", req.Path), slog.Int("attempt", attempt))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	done := s.cfg.Metrics.CallStarted()
	start := time.Now()
	text, err := s.analyzer.Analyze(ctx, req)
	done()
	c.calls.Add(1)
	s.cfg.Metrics.RecordCall(string(req.Kind), err, time.Since(start))
	return text, err
}

// fail records a Failed result and its error record
func (s *Scheduler) fail(id string, kind types.ErrorKind, msg string, attempts int) error {
	now := time.Now()
	if err := s.store.Put(types.AnalysisResult{
		ID:          id,
		Kind:        types.KindFile,
		Status:      types.StatusFailed,
		ErrorKind:   kind,
		Message:     msg,
		Attempts:    attempts,
		RunID:       s.cfg.RunID,
		CompletedAt: now,
	}); err != nil {
		return err
	}
	s.store.RecordError(types.ErrorRecord{
		ID:        id,
		Attempt:   attempts,
		Kind:      kind,
		Message:   msg,
		Timestamp: now,
		RunID:     s.cfg.RunID,
	})
	return nil
}

// IsConflict reports whether err ended a run because of a store conflict
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}
