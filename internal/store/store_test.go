package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/archdoc/pkg/types"
)

// memPersister implements Persister for testing
type memPersister struct {
	mu      sync.Mutex
	results map[string]types.AnalysisResult
	errors  []types.ErrorRecord
	saveErr error
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{results: make(map[string]types.AnalysisResult)}
}

func (m *memPersister) LoadResults(ctx context.Context) ([]types.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AnalysisResult, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	return out, nil
}

func (m *memPersister) SaveResults(ctx context.Context, results []types.AnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	for _, r := range results {
		m.results[r.ID] = r
	}
	return nil
}

func (m *memPersister) DeleteResults(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.results, id)
	}
	return nil
}

func (m *memPersister) SaveErrors(ctx context.Context, records []types.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, records...)
	return nil
}

// dirNode implements Parent for testing
type dirNode []string

func (d dirNode) ChildIDs() []string { return d }

func success(id string) types.AnalysisResult {
	return types.AnalysisResult{ID: id, Kind: types.KindFile, Status: types.StatusSuccess, Text: "OK:" + id, Attempts: 1, CompletedAt: time.Now()}
}

func failed(id string) types.AnalysisResult {
	return types.AnalysisResult{ID: id, Kind: types.KindFile, Status: types.StatusFailed, ErrorKind: types.ErrorKindPermanent, Message: "bad", Attempts: 1, CompletedAt: time.Now()}
}

func TestPutAndGet(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.Put(success("a.cs")))
	r, ok := s.Get("a.cs")
	require.True(t, ok)
	assert.Equal(t, "OK:a.cs", r.Text)
	assert.True(t, s.HasSuccess("a.cs"))

	_, ok = s.Get("missing.cs")
	assert.False(t, ok)
	assert.False(t, s.HasSuccess("missing.cs"))
	assert.Equal(t, 1, s.Len())
}

func TestPutRejectsInvalid(t *testing.T) {
	s := New(nil)
	err := s.Put(types.AnalysisResult{ID: "a.cs", Kind: types.KindFile, Status: types.StatusFailed})
	assert.ErrorIs(t, err, types.ErrMissingFailure)
	assert.Equal(t, 0, s.Len())
}

func TestSecondSuccessConflicts(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Put(success("a.cs")))

	second := success("a.cs")
	second.Text = "different"
	err := s.Put(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "a.cs", conflict.ID)

	r, _ := s.Get("a.cs")
	assert.Equal(t, "OK:a.cs", r.Text, "first Success is kept, not merged")

	assert.ErrorIs(t, s.Put(failed("a.cs")), ErrConflict, "Failed never overwrites Success")
}

func TestFailedCanBeReplaced(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Put(failed("b.cs")))
	require.NoError(t, s.Put(failed("b.cs")))
	require.NoError(t, s.Put(success("b.cs")))
	assert.True(t, s.HasSuccess("b.cs"))
}

func TestConcurrentPutsAtMostOnce(t *testing.T) {
	s := New(nil)
	const writers = 16
	const ids = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := make(map[string]int)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				id := fmt.Sprintf("f%02d.cs", i)
				if err := s.Put(success(id)); err == nil {
					mu.Lock()
					wins[id]++
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrConflict)
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, wins, ids)
	for id, n := range wins {
		assert.Equal(t, 1, n, "identity %s", id)
	}
}

func TestAllChildrenResolved(t *testing.T) {
	s := New(nil)
	dir := dirNode{"a.cs", "b.cs", "Sub"}

	assert.False(t, s.AllChildrenResolved(dir))
	require.NoError(t, s.Put(success("a.cs")))
	require.NoError(t, s.Put(failed("b.cs")))
	assert.False(t, s.AllChildrenResolved(dir))

	sub := success("Sub")
	sub.Kind = types.KindDirectory
	require.NoError(t, s.Put(sub))
	assert.True(t, s.AllChildrenResolved(dir))

	assert.True(t, s.AllChildrenResolved(dirNode{}))
}

func TestInvalidate(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Put(success("a.cs")))
	assert.ErrorIs(t, s.Invalidate("a.cs"), ErrNotSummary)

	dir := success("Sub")
	dir.Kind = types.KindDirectory
	require.NoError(t, s.Put(dir))
	require.NoError(t, s.Invalidate("Sub"))
	_, ok := s.Get("Sub")
	assert.False(t, ok)

	require.NoError(t, s.Put(dir), "invalidated identity can be written again")
	assert.NoError(t, s.Invalidate("unknown"))

	overview := success(types.ProjectID)
	overview.Kind = types.KindProject
	require.NoError(t, s.Put(overview))
	require.NoError(t, s.Invalidate(types.ProjectID))
	assert.False(t, s.HasSuccess(types.ProjectID))
}

func TestErrorsAndResults(t *testing.T) {
	s := New(nil)
	s.RecordError(types.ErrorRecord{ID: "b.cs", Attempt: 1, Kind: types.ErrorKindPermanent})
	s.RecordError(types.ErrorRecord{ID: "c.cs", Attempt: 3, Kind: types.ErrorKindTransient})

	errs := s.Errors()
	require.Len(t, errs, 2)
	errs[0].ID = "mutated"
	assert.Equal(t, "b.cs", s.Errors()[0].ID)

	require.NoError(t, s.Put(success("z.cs")))
	require.NoError(t, s.Put(success("a.cs")))
	dir := success("Sub")
	dir.Kind = types.KindDirectory
	require.NoError(t, s.Put(dir))

	files := s.Results(types.KindFile)
	require.Len(t, files, 2)
	assert.Equal(t, "a.cs", files[0].ID)
	assert.Equal(t, "z.cs", files[1].ID)
	assert.Len(t, s.Results(types.KindDirectory), 1)
	assert.Len(t, s.Results(""), 3)

	snap := s.Snapshot()
	assert.Len(t, snap, 3)
	delete(snap, "a.cs")
	assert.True(t, s.HasSuccess("a.cs"))
}

func TestFlushAndLoad(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	s := New(p)

	require.NoError(t, s.Put(success("a.cs")))
	dir := success("Sub")
	dir.Kind = types.KindDirectory
	require.NoError(t, s.Put(dir))
	s.RecordError(types.ErrorRecord{ID: "b.cs", Attempt: 1, Kind: types.ErrorKindPermanent})
	require.NoError(t, s.Flush(ctx))

	assert.Len(t, p.results, 2)
	assert.Len(t, p.errors, 1)

	// Nothing pending: no further writes
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, p.saves)
	assert.Len(t, p.errors, 1)

	require.NoError(t, s.Invalidate("Sub"))
	require.NoError(t, s.Flush(ctx))
	assert.Len(t, p.results, 1)

	reloaded := New(p)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.HasSuccess("a.cs"))
	assert.ErrorIs(t, reloaded.Put(success("a.cs")), ErrConflict)
}

func TestFlushFailureRequeues(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	p.saveErr = errors.New("disk full")
	s := New(p)

	require.NoError(t, s.Put(success("a.cs")))
	assert.Error(t, s.Flush(ctx))
	assert.Empty(t, p.results)

	p.saveErr = nil
	require.NoError(t, s.Flush(ctx))
	assert.Len(t, p.results, 1)
}

func TestMemoryOnlyStore(t *testing.T) {
	s := New(nil)
	assert.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Put(success("a.cs")))
	assert.NoError(t, s.Flush(context.Background()))
}
