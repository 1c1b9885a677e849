package driven

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// DocumentStore persists documents and their chunk texts.
// Backed by SQLite.
//
// The chunk store and the vector index must stay consistent: no vector
// record without a stored chunk and vice versa. The ingest service
// maintains this; ReferentialCheck data comes from ListVectorIDs.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// SaveChunks stores all chunks for a document in one transaction.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves a document's chunks ordered by chunk index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunkByVectorID retrieves the chunk owning a vector ID.
	// Returns domain.ErrNotFound if it does not exist.
	GetChunkByVectorID(ctx context.Context, vectorID int64) (*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	// Returns domain.ErrNotFound if the document does not exist.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// ListVectorIDs returns every stored chunk's vector ID.
	// Used by the startup referential integrity check.
	ListVectorIDs(ctx context.Context) ([]int64, error)
}
