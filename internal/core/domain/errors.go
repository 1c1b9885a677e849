package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	// The vector index returns this for duplicate vector IDs.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	// Validation failures are rejected before any work begins.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding model cannot be
	// reached or returned malformed output. Callers must not index or
	// search with invalid vectors.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the language model service failed.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrDimensionMismatch indicates a vector's length disagrees with
	// the index's fixed dimension. This is a configuration error and
	// is never retried.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrQuotaExceeded indicates the daily token budget is exhausted.
	// Recoverable and user-visible; requests are rejected before the
	// LLM call, not after.
	ErrQuotaExceeded = errors.New("daily token quota exceeded")
)
