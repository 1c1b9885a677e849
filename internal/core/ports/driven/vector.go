package driven

import "context"

// VectorRecord is one entry in the vector index: an embedding plus the
// back-reference to the chunk it represents. The vector ID is shared
// with the owning chunk.
type VectorRecord struct {
	// VectorID is the globally unique record ID.
	VectorID int64

	// DocumentID is the owning document.
	DocumentID string

	// ChunkIndex is the chunk's ordinal within the document.
	ChunkIndex int

	// Embedding is the L2-normalized vector.
	Embedding []float32
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// VectorID is the matched record.
	VectorID int64

	// DocumentID is the matched record's document.
	DocumentID string

	// ChunkIndex is the matched record's chunk ordinal.
	ChunkIndex int

	// Score is the inner product against the query, in [-1, 1] for
	// normalized vectors.
	Score float64
}

// VectorIndex provides ID-addressable similarity search over
// unit-normalized vectors.
//
// The dimension is fixed by the first inserted record; later inserts of
// a different length fail with domain.ErrDimensionMismatch. Duplicate
// vector IDs are rejected with domain.ErrAlreadyExists.
//
// Mutations of one document's records are atomic with respect to
// concurrent searches: a search observes either the full pre-mutation
// or full post-mutation set for that document, never a partial one.
type VectorIndex interface {
	// ReserveIDs atomically allocates n consecutive fresh vector IDs
	// and returns the first. IDs are monotonic and never reused.
	ReserveIDs(n int) int64

	// Insert adds one record.
	Insert(ctx context.Context, rec VectorRecord) error

	// InsertBatch adds all records atomically with respect to
	// concurrent searches. Records should belong to one document.
	InsertBatch(ctx context.Context, recs []VectorRecord) error

	// DeleteByDocument removes all records referencing the document
	// and returns how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Search returns the topK records with the highest inner product
	// against the query, descending; ties break by ascending vector ID.
	// topK <= 0 fails with domain.ErrInvalidInput; topK larger than the
	// record count returns all records.
	Search(ctx context.Context, query []float32, topK int) ([]VectorHit, error)

	// Len returns the number of records in the index.
	Len() int

	// Close persists and releases resources.
	Close() error
}
