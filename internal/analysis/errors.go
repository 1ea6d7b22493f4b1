package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/dshills/archdoc/pkg/types"
)

// TransientError signals a retryable failure: rate limiting, timeouts,
// transport errors and server-side faults
type TransientError struct {
	Path string
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure for %s: %v", e.Path, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError signals a non-retryable failure such as malformed input or
// rejected credentials
type PermanentError struct {
	Path string
	Err  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure for %s: %v", e.Path, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError
func Transient(path string, err error) error {
	return &TransientError{Path: path, Err: err}
}

// Permanent wraps err as a PermanentError
func Permanent(path string, err error) error {
	return &PermanentError{Path: path, Err: err}
}

// IsTransient reports whether err is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err must not be retried
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// KindOf maps an analysis failure onto the error taxonomy.
// Unclassified errors are treated as transient transport failures.
func KindOf(err error) types.ErrorKind {
	switch {
	case IsPermanent(err):
		return types.ErrorKindPermanent
	default:
		return types.ErrorKindTransient
	}
}

// Retryable reports whether a failed call may be attempted again.
// It is the predicate used for every retry policy over an Analyzer.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == types.ErrorKindTransient
}

// classify converts a client error into the taxonomy
func classify(path string, err error) error {
	if IsTransient(err) || IsPermanent(err) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(path, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return byStatus(path, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(path, reqErr.HTTPStatusCode, err)
	}

	return Transient(path, err)
}

func byStatus(path string, status int, err error) error {
	switch {
	case status == 0,
		status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return Transient(path, err)
	default:
		return Permanent(path, err)
	}
}
