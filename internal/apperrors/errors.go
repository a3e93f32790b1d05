package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by document store reads before the
// embedding subsystem has been constructed.
var ErrNotInitialized = errors.New("embedding subsystem not initialized")

// ValidationError covers malformed or missing request input. Surfaced
// immediately to the caller, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmbeddingError covers embedding provider failures, including wrong
// dimensionality in a returned vector. A batched call fails whole.
type EmbeddingError struct {
	Reason string
	Err    error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding failed: %s", e.Reason)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// StorageError covers vector store and blob store operation failures.
type StorageError struct {
	Backend string // "vector" or "blob"
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ModelCallError covers language-model completion failures. A failure in
// one batch aborts the whole pipeline.
type ModelCallError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed (%s/%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }
