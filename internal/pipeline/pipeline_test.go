package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/archdoc/internal/analysis"
	"github.com/dshills/archdoc/internal/config"
	"github.com/dshills/archdoc/internal/report"
	"github.com/dshills/archdoc/internal/storage"
	"github.com/dshills/archdoc/pkg/types"
)

// countingAnalyzer wraps the offline provider and counts calls per path
type countingAnalyzer struct {
	inner analysis.Analyzer
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingAnalyzer() *countingAnalyzer {
	return &countingAnalyzer{
		inner: analysis.NewOfflineProvider(nil),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

func (c *countingAnalyzer) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	c.mu.Lock()
	c.calls[req.Path]++
	err := c.fail[req.Path]
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return c.inner.Analyze(ctx, req)
}

func (c *countingAnalyzer) Provider() string { return "counting" }
func (c *countingAnalyzer) Model() string    { return "offline-outline" }
func (c *countingAnalyzer) Close() error     { return nil }

func (c *countingAnalyzer) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingAnalyzer) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

func scenarioConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	for rel, content := range map[string]string{
		"a.cs":     "public class A {}\n",
		"b.cs":     "public class B {}\n",
		"Sub/c.cs": "public class C {}\n",
	} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.ProjectDir = root
	cfg.Provider = analysis.ProviderOffline
	cfg.Workers = 2
	cfg.Retry.BaseDelay = 0
	require.NoError(t, cfg.Finalize())
	return cfg
}

func readOutput(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, name))
	require.NoError(t, err)
	return string(data)
}

func readErrors(t *testing.T, cfg *config.Config) []types.ErrorRecord {
	t.Helper()
	var records []types.ErrorRecord
	require.NoError(t, json.Unmarshal([]byte(readOutput(t, cfg, report.ErrorsFile)), &records))
	return records
}

func TestRunAllSucceed(t *testing.T) {
	cfg := scenarioConfig(t)
	a := newCountingAnalyzer()

	outcome, err := Run(context.Background(), cfg, WithAnalyzer(a))
	require.NoError(t, err)

	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, 3, outcome.Schedule.FilesAnalyzed)
	assert.Equal(t, 2, outcome.Aggregate.Summarized)
	assert.Equal(t, 1, outcome.Overview.Summarized)
	// Three files, two directories, one project overview
	assert.Equal(t, 6, a.total())

	md := readOutput(t, cfg, report.ArchitectureFile)
	assert.Contains(t, md, "## Project Overview\n\nproject /:")
	assert.Contains(t, md, "<!-- dir: . depth=0 -->")
	assert.Contains(t, md, "<!-- file: Sub/c.cs depth=2 -->")
	assert.Contains(t, md, "- public class C {}")
	assert.NotContains(t, md, "[FAILED")
	assert.Empty(t, readErrors(t, cfg))

	_, err = os.Stat(report.FilePath(cfg.OutputDir, "Sub/c.cs"))
	assert.NoError(t, err)
	_, err = os.Stat(report.DirPath(cfg.OutputDir, "Sub"))
	assert.NoError(t, err)
}

func TestRunIsolatesFailure(t *testing.T) {
	cfg := scenarioConfig(t)
	a := newCountingAnalyzer()
	a.fail["b.cs"] = analysis.Permanent("b.cs", errors.New("content rejected"))

	outcome, err := Run(context.Background(), cfg, WithAnalyzer(a))
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Schedule.FilesAnalyzed)
	assert.Equal(t, 1, outcome.Schedule.FilesFailed)
	assert.Equal(t, 1, a.count("b.cs"))

	md := readOutput(t, cfg, report.ArchitectureFile)
	assert.Contains(t, md, "[FAILED: PermanentError - permanent failure for b.cs: content rejected]")
	// The root summary is still produced and mentions the failure
	assert.Contains(t, md, "directory .:")

	records := readErrors(t, cfg)
	require.Len(t, records, 1)
	assert.Equal(t, "b.cs", records[0].ID)
	assert.Equal(t, types.ErrorKindPermanent, records[0].Kind)
	assert.Equal(t, outcome.RunID, records[0].RunID)
}

func TestRunResumptionIdempotent(t *testing.T) {
	cfg := scenarioConfig(t)

	first := newCountingAnalyzer()
	_, err := Run(context.Background(), cfg, WithAnalyzer(first))
	require.NoError(t, err)
	firstReport := readOutput(t, cfg, report.ArchitectureFile)

	// Rerun past every file: nothing to do
	cfg.StartFrom = 3
	second := newCountingAnalyzer()
	outcome, err := Run(context.Background(), cfg, WithAnalyzer(second))
	require.NoError(t, err)

	assert.Zero(t, second.total())
	assert.Equal(t, 3, outcome.Schedule.FilesSkipped)
	assert.Equal(t, 2, outcome.Aggregate.Reused)
	assert.Equal(t, 1, outcome.Overview.Reused)
	assert.Equal(t, firstReport, readOutput(t, cfg, report.ArchitectureFile))

	// A rerun from zero also finds everything done
	cfg.StartFrom = 0
	third := newCountingAnalyzer()
	_, err = Run(context.Background(), cfg, WithAnalyzer(third))
	require.NoError(t, err)
	assert.Zero(t, third.total())
	assert.Equal(t, firstReport, readOutput(t, cfg, report.ArchitectureFile))
}

func TestRunResumeRetriesFailed(t *testing.T) {
	cfg := scenarioConfig(t)

	first := newCountingAnalyzer()
	first.fail["b.cs"] = analysis.Transient("b.cs", errors.New("503"))
	_, err := Run(context.Background(), cfg, WithAnalyzer(first))
	require.NoError(t, err)
	assert.Equal(t, cfg.Retry.MaxAttempts, first.count("b.cs"))

	second := newCountingAnalyzer()
	outcome, err := Run(context.Background(), cfg, WithAnalyzer(second))
	require.NoError(t, err)

	// Only the failed file, the directory containing it and the overview
	// built on that directory are redone
	assert.Equal(t, 1, second.count("b.cs"))
	assert.Equal(t, 1, second.count("."))
	assert.Equal(t, 1, second.count(types.ProjectID))
	assert.Zero(t, second.count("Sub"))
	assert.Equal(t, 3, second.total())
	assert.Equal(t, 1, outcome.Aggregate.Reused)
	assert.Zero(t, outcome.Overview.Reused)

	assert.NotContains(t, readOutput(t, cfg, report.ArchitectureFile), "[FAILED")
	// Earlier failures are not part of this run's error collection
	assert.Empty(t, readErrors(t, cfg))
}

func TestRunStartFromOutOfRange(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.StartFrom = 4
	a := newCountingAnalyzer()

	_, err := Run(context.Background(), cfg, WithAnalyzer(a))
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.True(t, IsFatal(err))
	assert.Zero(t, a.total())

	_, err = os.Stat(filepath.Join(cfg.OutputDir, report.ArchitectureFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunStartFromMarksNotAnalyzed(t *testing.T) {
	cfg := scenarioConfig(t)
	cfg.StartFrom = 2
	a := newCountingAnalyzer()

	outcome, err := Run(context.Background(), cfg, WithAnalyzer(a))
	require.NoError(t, err)

	assert.Zero(t, a.count("a.cs"))
	assert.Zero(t, a.count("b.cs"))
	assert.Equal(t, 1, a.count("Sub/c.cs"))
	assert.Equal(t, 2, outcome.Schedule.FilesNotAnalyzed)

	records := readErrors(t, cfg)
	require.Len(t, records, 2)
	assert.Equal(t, types.ErrorKindNotAnalyzed, records[0].Kind)
}

func TestRunRecordsRun(t *testing.T) {
	cfg := scenarioConfig(t)
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	a := newCountingAnalyzer()
	a.fail["a.cs"] = analysis.Permanent("a.cs", errors.New("bad"))
	outcome, err := Run(context.Background(), cfg, WithAnalyzer(a), WithStorage(db))
	require.NoError(t, err)

	run, err := db.GetRun(context.Background(), outcome.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunCompleted, run.Status)
	assert.Equal(t, 3, run.FilesTotal)
	assert.Equal(t, 1, run.FilesFailed)
	assert.Equal(t, "counting", run.Provider)

	status, err := db.GetStatus(context.Background(), cfg.ProjectDir)
	require.NoError(t, err)
	assert.Equal(t, 3, status.FileResults)
	assert.Equal(t, 2, status.DirectoryResults)
	assert.Equal(t, 1, status.ErrorRecords)
}

// cancellingAnalyzer cancels the run on its first call
type cancellingAnalyzer struct {
	*countingAnalyzer
	cancel context.CancelFunc
}

func (c *cancellingAnalyzer) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	c.cancel()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunCancelled(t *testing.T) {
	cfg := scenarioConfig(t)
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &cancellingAnalyzer{countingAnalyzer: newCountingAnalyzer(), cancel: cancel}

	outcome, err := Run(ctx, cfg, WithAnalyzer(a), WithStorage(db))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, outcome)

	run, gerr := db.GetRun(context.Background(), outcome.RunID)
	require.NoError(t, gerr)
	assert.Equal(t, storage.RunFailed, run.Status)

	// Unresolved files stay unresolved for the next run
	results, gerr := db.LoadResults(context.Background(), cfg.ProjectDir)
	require.NoError(t, gerr)
	assert.Empty(t, results)

	_, err = os.Stat(filepath.Join(cfg.OutputDir, report.ArchitectureFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := config.Default()
	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunLock(t *testing.T) {
	var lock RunLock
	require.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.False(t, lock.Held())

	const n = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
	)
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			if lock.TryAcquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired)
}

func TestRunProjectsShareDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	project := func(fn string) *config.Config {
		cfg := config.Default()
		cfg.ProjectDir = t.TempDir()
		cfg.Provider = analysis.ProviderOffline
		cfg.DBPath = dbPath
		cfg.Retry.BaseDelay = 0
		require.NoError(t, os.WriteFile(filepath.Join(cfg.ProjectDir, "main.go"), []byte("func "+fn+"() {}\n"), 0o644))
		require.NoError(t, cfg.Finalize())
		return cfg
	}
	alpha := project("Alpha")
	beta := project("Beta")

	_, err := Run(context.Background(), alpha, WithAnalyzer(newCountingAnalyzer()))
	require.NoError(t, err)

	b := newCountingAnalyzer()
	_, err = Run(context.Background(), beta, WithAnalyzer(b))
	require.NoError(t, err)

	// The second project is analyzed from its own sources
	assert.Equal(t, 1, b.count("main.go"))
	md := readOutput(t, beta, report.ArchitectureFile)
	assert.Contains(t, md, "func Beta")
	assert.NotContains(t, md, "func Alpha")

	// Rerunning the first project still reuses its own results
	again := newCountingAnalyzer()
	_, err = Run(context.Background(), alpha, WithAnalyzer(again))
	require.NoError(t, err)
	assert.Zero(t, again.total())
	assert.Contains(t, readOutput(t, alpha, report.ArchitectureFile), "func Alpha")
}
