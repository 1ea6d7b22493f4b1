package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Common errors
var (
	ErrEmptyContent      = errors.New("content cannot be empty")
	ErrEmptyResponse     = errors.New("provider returned no content")
	ErrUnknownProvider   = errors.New("unknown analysis provider")
	ErrNoProviderEnabled = errors.New("no analysis provider configured")
)

// Kind selects the prompt variant used for a request
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindProject   Kind = "project"
)

// Request is one call to the analysis service
type Request struct {
	Kind    Kind
	Path    string // Identity of the file or directory being analysed
	Context string // Project context document, passed through unmodified
	Content string // File content or synthesized directory context
}

// Analyzer is the boundary to the external inference service.
// Implementations hold no concurrency control of their own; callers bound
// the number of concurrent Analyze calls.
type Analyzer interface {
	// Analyze returns the analysis text for the request. Failures are
	// reported as *TransientError or *PermanentError.
	Analyze(ctx context.Context, req Request) (string, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the analyzer
	Close() error
}

// ValidateRequest validates an analysis request
func ValidateRequest(req Request) error {
	if strings.TrimSpace(req.Content) == "" {
		return Permanent(req.Path, ErrEmptyContent)
	}
	return nil
}

// ComputeHash computes the cache key of a request
func ComputeHash(req Request) string {
	h := sha256.New()
	for _, part := range []string{string(req.Kind), req.Path, req.Context, req.Content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
