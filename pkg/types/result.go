package types

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// RootID identifies the project root directory
const RootID = "."

// ProjectID identifies the project-level architecture overview. It is
// never a relative path, so it cannot collide with a file or directory.
const ProjectID = "/"

// Status is the outcome of analysing one identity
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ResultKind tells whether a result belongs to a file, a directory or the
// whole project
type ResultKind string

const (
	KindFile      ResultKind = "file"
	KindDirectory ResultKind = "directory"
	KindProject   ResultKind = "project"
)

// AnalysisResult is the analysis text recorded for a file or directory
type AnalysisResult struct {
	ID     string
	Kind   ResultKind
	Status Status
	Text   string

	// Failure details, set only when Status is StatusFailed
	ErrorKind ErrorKind
	Message   string

	Attempts    int
	RunID       string
	CompletedAt time.Time
}

// Summary reports whether the result is derived from other results and may
// be recomputed when they change
func (r AnalysisResult) Summary() bool {
	return r.Kind == KindDirectory || r.Kind == KindProject
}

// Succeeded reports whether the result has Success status
func (r AnalysisResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Validate checks if the result is well formed
func (r AnalysisResult) Validate() error {
	if r.ID == "" {
		return ErrEmptyIdentity
	}
	switch r.Kind {
	case KindFile, KindDirectory, KindProject:
	default:
		return ErrInvalidKind
	}
	switch r.Status {
	case StatusSuccess:
	case StatusFailed:
		if r.ErrorKind == "" {
			return ErrMissingFailure
		}
	default:
		return ErrInvalidStatus
	}
	return nil
}

// ErrorRecord is one entry of the run's error collection
type ErrorRecord struct {
	ID        string    `json:"path"`
	Attempt   int       `json:"attempt"`
	Kind      ErrorKind `json:"error_type"`
	Message   string    `json:"error_msg"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// NormalizeID converts a relative filesystem path into an identity
func NormalizeID(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	p = strings.TrimPrefix(p, "./")
	if p == "" || p == "/" {
		return RootID
	}
	return p
}

// ParentID returns the identity of the directory containing id.
// The root is its own parent.
func ParentID(id string) string {
	if id == RootID {
		return RootID
	}
	return NormalizeID(path.Dir(id))
}

// Depth returns the number of path segments below the root
func Depth(id string) int {
	if id == RootID {
		return 0
	}
	return strings.Count(id, "/") + 1
}
