package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals input rejected before any external call (blank tenant, bad filter, empty batch).
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorage signals that the vector index rejected a call or is unreachable.
	ErrStorage = errors.New("storage error")
	// ErrInvariant signals a broken internal invariant. Callers must not swallow it.
	ErrInvariant = errors.New("invariant violated")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// InvariantError reports the segmentation loop exceeding its iteration bound.
type InvariantError struct {
	Iterations int
	Limit      int
	Sentences  int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %d iterations exceed limit %d for %d sentences",
		ErrInvariant.Error(), e.Iterations, e.Limit, e.Sentences)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// NewInvariantError creates an iteration-bound error.
func NewInvariantError(iterations, limit, sentences int) error {
	return &InvariantError{Iterations: iterations, Limit: limit, Sentences: sentences}
}
