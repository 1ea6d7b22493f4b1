package storage

import (
	"context"
	"time"

	"github.com/dshills/archdoc/pkg/types"
)

// Storage defines the interface for persisting run state and analysis results.
// Results and error records belong to a project root; several projects can
// share one database without seeing each other's results.
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	LatestRun(ctx context.Context, projectRoot string) (*Run, error)

	// Result operations
	LoadResults(ctx context.Context, projectRoot string) ([]types.AnalysisResult, error)
	SaveResults(ctx context.Context, projectRoot string, results []types.AnalysisResult) error
	DeleteResults(ctx context.Context, projectRoot string, ids []string) error

	// Error record operations
	SaveErrors(ctx context.Context, projectRoot string, records []types.ErrorRecord) error
	ListErrors(ctx context.Context, runID string) ([]types.ErrorRecord, error)

	// Status operations
	GetStatus(ctx context.Context, projectRoot string) (*ProjectStatus, error)

	// Database operations
	Close() error
}

// ProjectScope binds the result and error operations of a Storage to one
// project root. It satisfies store.Persister.
type ProjectScope struct {
	storage Storage
	root    string
}

// ForProject returns the view of s for the project at root
func ForProject(s Storage, root string) *ProjectScope {
	return &ProjectScope{storage: s, root: root}
}

// Root returns the project root of the scope
func (p *ProjectScope) Root() string {
	return p.root
}

func (p *ProjectScope) LoadResults(ctx context.Context) ([]types.AnalysisResult, error) {
	return p.storage.LoadResults(ctx, p.root)
}

func (p *ProjectScope) SaveResults(ctx context.Context, results []types.AnalysisResult) error {
	return p.storage.SaveResults(ctx, p.root, results)
}

func (p *ProjectScope) DeleteResults(ctx context.Context, ids []string) error {
	return p.storage.DeleteResults(ctx, p.root, ids)
}

func (p *ProjectScope) SaveErrors(ctx context.Context, records []types.ErrorRecord) error {
	return p.storage.SaveErrors(ctx, p.root, records)
}

// Run status values
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run records one invocation of the pipeline against a project
type Run struct {
	ID          string
	ProjectRoot string
	StartFrom   int
	Workers     int
	Provider    string
	Model       string
	Status      string
	FilesTotal  int
	FilesFailed int
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// ProjectStatus contains statistics about the stored results of a project.
// With an empty project root it covers the whole database.
type ProjectStatus struct {
	LastRun          *Run // Nil when no run was recorded
	Runs             int
	FileResults      int
	DirectoryResults int
	FailedResults    int
	ErrorRecords     int
	DatabaseSizeMB   float64
}
