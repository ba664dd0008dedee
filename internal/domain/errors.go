package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrExtraction           = errors.New("text extraction failed")
	ErrUnsupportedFormat    = fmt.Errorf("%w: unsupported format", ErrExtraction)
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrPersistence          = errors.New("persistence failed")
	ErrInvalidMode          = errors.New("invalid query mode")
	ErrInvalidName          = errors.New("invalid index name")
)

// PersistenceError reports a snapshot write that failed after the
// in-memory mutation was committed. The write can be retried with Flush.
type PersistenceError struct {
	Index string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist index %q: %v", e.Index, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
