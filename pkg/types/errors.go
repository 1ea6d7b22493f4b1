package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyIdentity  = errors.New("identity cannot be empty")
	ErrInvalidStatus  = errors.New("status must be success or failed")
	ErrInvalidKind    = errors.New("kind must be file, directory or project")
	ErrMissingFailure = errors.New("failed result requires an error kind")
)

// ErrorKind classifies a failure recorded during a run
type ErrorKind string

const (
	// ErrorKindAccess marks a path that could not be read
	ErrorKindAccess ErrorKind = "AccessError"
	// ErrorKindTransient marks a retryable service failure that exhausted its attempts
	ErrorKindTransient ErrorKind = "TransientError"
	// ErrorKindPermanent marks a non-retryable service failure
	ErrorKindPermanent ErrorKind = "PermanentError"
	// ErrorKindConflict marks an attempted overwrite of a Success result
	ErrorKindConflict ErrorKind = "ConflictError"
	// ErrorKindNotAnalyzed marks a file before start_from with no prior result
	ErrorKindNotAnalyzed ErrorKind = "NotAnalyzed"
	// ErrorKindConfig marks an invalid run configuration
	ErrorKindConfig ErrorKind = "ConfigError"
)
