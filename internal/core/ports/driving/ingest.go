package driving

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// IngestService turns extracted document text into searchable chunks.
// Text extraction from PDF/DOCX/XLSX lives outside this core; callers
// hand over plain text.
type IngestService interface {
	// Ingest accepts extracted text, chunks and embeds it, and indexes
	// the result. The returned document carries the final status. A
	// partial embedding or indexing failure rolls the whole document
	// back to failed; a failed document is never discoverable by
	// search.
	Ingest(ctx context.Context, filename, text string) (*domain.Document, error)

	// Delete removes a document, its chunks, and its vector records.
	// Returns domain.ErrNotFound for an unknown document.
	Delete(ctx context.Context, documentID string) error

	// Get returns a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)
}
