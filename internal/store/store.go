// Package store is the process-wide registry of analysis results shared by
// all scheduler workers.
//
// A Success result is written at most once per identity: a later Put for the
// same identity fails with a *ConflictError. Failed results may be replaced,
// which is how a resumed run retries earlier failures.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/archdoc/pkg/types"
)

var (
	// ErrConflict is matched by every ConflictError
	ErrConflict = errors.New("success result already recorded")
	// ErrNotSummary is returned when invalidating a file result
	ErrNotSummary = errors.New("only summary results can be invalidated")
)

// ConflictError reports an attempted overwrite of a Success result
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %v", e.ID, ErrConflict)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Persister is the durable backing behind the flush boundary
type Persister interface {
	LoadResults(ctx context.Context) ([]types.AnalysisResult, error)
	SaveResults(ctx context.Context, results []types.AnalysisResult) error
	DeleteResults(ctx context.Context, ids []string) error
	SaveErrors(ctx context.Context, records []types.ErrorRecord) error
}

// Parent is a tree node whose direct children can be listed
type Parent interface {
	ChildIDs() []string
}

// Store is safe for concurrent use
type Store struct {
	mu      sync.RWMutex
	results map[string]types.AnalysisResult
	errors  []types.ErrorRecord

	dirty         map[string]struct{}
	deleted       map[string]struct{}
	flushedErrors int

	flushMu   sync.Mutex
	persister Persister
}

// New creates an empty store. persister may be nil for a memory-only store.
func New(persister Persister) *Store {
	return &Store{
		results:   make(map[string]types.AnalysisResult),
		dirty:     make(map[string]struct{}),
		deleted:   make(map[string]struct{}),
		persister: persister,
	}
}

// Load seeds the store from its persister
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	results, err := s.persister.LoadResults(ctx)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		s.results[r.ID] = r
	}
	return nil
}

// Put records a result. It fails with a *ConflictError if a Success result
// already exists for the identity.
func (s *Store) Put(r types.AnalysisResult) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid result for %q: %w", r.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.results[r.ID]; ok && existing.Succeeded() {
		return &ConflictError{ID: r.ID}
	}
	s.results[r.ID] = r
	s.dirty[r.ID] = struct{}{}
	return nil
}

// Get returns the result recorded for id
func (s *Store) Get(id string) (types.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// HasSuccess reports whether a Success result exists for id
func (s *Store) HasSuccess(id string) bool {
	r, ok := s.Get(id)
	return ok && r.Succeeded()
}

// AllChildrenResolved reports whether every direct child of p has a result,
// successful or not
func (s *Store) AllChildrenResolved(p Parent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range p.ChildIDs() {
		if _, ok := s.results[id]; !ok {
			return false
		}
	}
	return true
}

// Invalidate removes a stale directory summary or project overview so it
// can be recomputed
func (s *Store) Invalidate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return nil
	}
	if !r.Summary() {
		return fmt.Errorf("%w: %s", ErrNotSummary, id)
	}
	delete(s.results, id)
	delete(s.dirty, id)
	s.deleted[id] = struct{}{}
	return nil
}

// RecordError appends to the run's error collection
func (s *Store) RecordError(rec types.ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, rec)
}

// Errors returns a copy of the error collection in recording order
func (s *Store) Errors() []types.ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ErrorRecord, len(s.errors))
	copy(out, s.errors)
	return out
}

// Results returns all results of the given kind sorted by identity.
// An empty kind returns every result.
func (s *Store) Results(kind types.ResultKind) []types.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AnalysisResult, 0, len(s.results))
	for _, r := range s.results {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of every recorded result keyed by identity
func (s *Store) Snapshot() map[string]types.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.AnalysisResult, len(s.results))
	for id, r := range s.results {
		out[id] = r
	}
	return out
}

// Len returns the number of recorded results
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Flush writes changes made since the last flush to the persister.
// Deletions are applied before saves, so an invalidated summary that was
// recomputed replaces the stored row. Entries that fail to persist stay
// pending for the next flush.
func (s *Store) Flush(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	results := make([]types.AnalysisResult, 0, len(s.dirty))
	for id := range s.dirty {
		results = append(results, s.results[id])
	}
	deleted := make([]string, 0, len(s.deleted))
	for id := range s.deleted {
		deleted = append(deleted, id)
	}
	records := append([]types.ErrorRecord(nil), s.errors[s.flushedErrors:]...)
	s.dirty = make(map[string]struct{})
	s.deleted = make(map[string]struct{})
	s.mu.Unlock()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	sort.Strings(deleted)

	var err error
	if len(deleted) > 0 {
		err = s.persister.DeleteResults(ctx, deleted)
	}
	if err == nil && len(results) > 0 {
		err = s.persister.SaveResults(ctx, results)
	}
	if err != nil {
		s.requeue(results, deleted)
		return fmt.Errorf("failed to flush results: %w", err)
	}

	if len(records) > 0 {
		if err := s.persister.SaveErrors(ctx, records); err != nil {
			return fmt.Errorf("failed to flush error records: %w", err)
		}
		s.mu.Lock()
		s.flushedErrors += len(records)
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) requeue(results []types.AnalysisResult, deleted []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if _, ok := s.results[r.ID]; ok {
			s.dirty[r.ID] = struct{}{}
		}
	}
	for _, id := range deleted {
		s.deleted[id] = struct{}{}
	}
}
