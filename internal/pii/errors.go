package pii

import "fmt"

// ValidationError reports input that fails size or shape constraints.
// Always client-caused; handled at the HTTP boundary as a 4xx response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NewValidationError creates a ValidationError with a stable reason string.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// ProcessingError reports a pipeline stage failure: pattern loading,
// tokenization, or entity detection. Mapped to a 5xx response, logged,
// never retried within a request.
type ProcessingError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Msg)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a ProcessingError for the given stage.
func NewProcessingError(stage, msg string, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, Msg: msg, Err: err}
}

// ModelLoadError reports a backend resource that is missing or unusable at
// construction time. Fatal at startup, never produced per-request.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model load failed for %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("model load failed for %s", e.Path)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// NewModelLoadError creates a ModelLoadError for the given resource path.
func NewModelLoadError(path string, err error) *ModelLoadError {
	return &ModelLoadError{Path: path, Err: err}
}

// CacheError reports a cache failure worth surfacing. Only read-time
// corruption reaches callers; write-side failures are swallowed by the
// pipeline's fire-and-forget store.
type CacheError struct {
	Op  string
	Msg string
	Err error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("cache %s: %s", e.Op, e.Msg)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// NewCacheError creates a CacheError for the given operation.
func NewCacheError(op, msg string, err error) *CacheError {
	return &CacheError{Op: op, Msg: msg, Err: err}
}
