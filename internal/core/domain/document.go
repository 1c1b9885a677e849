package domain

import "time"

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

// Document processing states.
const (
	// DocumentPending means the document was accepted but not yet processed.
	DocumentPending DocumentStatus = "pending"

	// DocumentProcessing means chunking and embedding are in progress.
	DocumentProcessing DocumentStatus = "processing"

	// DocumentCompleted means all chunks are embedded and indexed.
	DocumentCompleted DocumentStatus = "completed"

	// DocumentFailed means processing failed; the document is not searchable.
	DocumentFailed DocumentStatus = "failed"
)

// Document represents an ingested document with processing metadata.
// It is created when an upload is accepted and owns an ordered
// sequence of Chunks once processing completes.
type Document struct {
	// ID is the unique identifier, assigned at ingestion.
	ID string

	// Filename is the original upload filename.
	Filename string

	// Format is the detected file format (".pdf", ".txt", ...).
	Format string

	// Size is the byte size of the original file.
	Size int64

	// Status is the current ingestion status.
	Status DocumentStatus

	// ChunkCount is the number of chunks produced by processing.
	ChunkCount int

	// Error holds the failure reason when Status is DocumentFailed.
	Error string

	// CreatedAt is when the document was accepted.
	CreatedAt time.Time

	// UpdatedAt is when the document last changed status.
	UpdatedAt time.Time
}

// Chunk represents a searchable unit within a document.
// Chunks are created once during document processing and are
// immutable thereafter; they are deleted only with their document.
type Chunk struct {
	// VectorID is the globally unique ID shared with the chunk's
	// vector record in the index.
	VectorID int64

	// DocumentID links to the parent Document.
	DocumentID string

	// Index is the dense, zero-based ordinal within the document.
	// Indices never overlap even though chunk text spans may.
	Index int

	// Content is the trimmed text content of this chunk.
	Content string

	// StartOffset is the character offset of the chunk's window
	// in the source document text.
	StartOffset int

	// EndOffset is the character offset one past the chunk's window.
	EndOffset int

	// Page is the source page number, when known.
	Page *int
}
