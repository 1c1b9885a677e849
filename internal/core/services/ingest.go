package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragcore/internal/chunker"
	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/core/ports/driving"
	"github.com/custodia-labs/ragcore/internal/logger"
	"github.com/custodia-labs/ragcore/internal/textnorm"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService runs the ingestion pipeline: chunk, embed, index.
type IngestService struct {
	docStore         driven.DocumentStore
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService
	splitter         *chunker.Splitter

	// docLocks serialises concurrent operations per document so a
	// delete cannot interleave with that document's ingestion.
	docLocks sync.Map
}

// NewIngestService creates a new ingest service.
func NewIngestService(
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	splitter *chunker.Splitter,
) *IngestService {
	return &IngestService{
		docStore:         docStore,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
		splitter:         splitter,
	}
}

// newDocumentID returns a fresh document identifier.
func newDocumentID() string {
	return "doc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// lockDocument acquires the per-document mutex.
func (s *IngestService) lockDocument(id string) func() {
	muAny, _ := s.docLocks.LoadOrStore(id, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Ingest accepts extracted text, chunks and embeds it, and indexes the result.
func (s *IngestService) Ingest(ctx context.Context, filename, text string) (*domain.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if s.embeddingService == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbeddingUnavailable)
	}
	text = textnorm.Clean(text)

	logger.Section("Ingestion")
	logger.Debug("Filename: %q, text: %d chars", filename, len(text))

	doc := &domain.Document{
		ID:       newDocumentID(),
		Filename: filename,
		Format:   strings.ToLower(filepath.Ext(filename)),
		Size:     int64(len(text)),
		Status:   domain.DocumentPending,
	}
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	unlock := s.lockDocument(doc.ID)
	defer unlock()

	if err := s.process(ctx, doc, text); err != nil {
		s.markFailed(ctx, doc, err)
		return doc, err
	}

	logger.Info("Ingested %s: %d chunks", doc.ID, doc.ChunkCount)
	return doc, nil
}

// process runs chunking, embedding, and indexing for one document.
// On any error the caller rolls the document back to failed; process
// itself undoes partial index writes.
func (s *IngestService) process(ctx context.Context, doc *domain.Document, text string) error {
	doc.Status = domain.DocumentProcessing
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	chunks, err := s.splitter.Split(doc.ID, text)
	if err != nil {
		return fmt.Errorf("chunk text: %w", err)
	}
	logger.Debug("Chunked into %d pieces", len(chunks))

	if len(chunks) == 0 {
		// Nothing searchable, but the document itself is fine.
		doc.Status = domain.DocumentCompleted
		doc.ChunkCount = 0
		if err := s.docStore.SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	logger.Debug("Embedding %d chunks with %s", len(texts), s.embeddingService.ModelName())
	embeddings, err := s.embeddingService.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			domain.ErrEmbeddingUnavailable, len(embeddings), len(chunks))
	}

	firstID := s.vectorIndex.ReserveIDs(len(chunks))
	records := make([]driven.VectorRecord, len(chunks))
	for i := range chunks {
		chunks[i].VectorID = firstID + int64(i)
		records[i] = driven.VectorRecord{
			VectorID:   chunks[i].VectorID,
			DocumentID: doc.ID,
			ChunkIndex: chunks[i].Index,
			Embedding:  embeddings[i],
		}
	}

	if err := s.vectorIndex.InsertBatch(ctx, records); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
		// Undo the index write so no vector points at a missing chunk.
		if _, delErr := s.vectorIndex.DeleteByDocument(ctx, doc.ID); delErr != nil {
			logger.Warn("Rollback of vector records for %s failed: %v", doc.ID, delErr)
		}
		return fmt.Errorf("save chunks: %w", err)
	}

	doc.Status = domain.DocumentCompleted
	doc.ChunkCount = len(chunks)
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return nil
}

// markFailed records a processing failure. The document stays visible
// with its error message; its vectors are removed so it can never match
// a search.
func (s *IngestService) markFailed(ctx context.Context, doc *domain.Document, cause error) {
	logger.Warn("Ingestion of %s failed: %v", doc.ID, cause)

	if _, err := s.vectorIndex.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Warn("Removing vector records for failed document %s: %v", doc.ID, err)
	}

	doc.Status = domain.DocumentFailed
	doc.Error = cause.Error()
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		logger.Warn("Recording failure for %s: %v", doc.ID, err)
	}
}

// Delete removes a document, its chunks, and its vector records.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	unlock := s.lockDocument(documentID)
	defer unlock()

	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		return err
	}

	removed, err := s.vectorIndex.DeleteByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	logger.Debug("Removed %d vector records for %s", removed, documentID)

	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.docLocks.Delete(documentID)
	return nil
}

// Get returns a document by ID.
func (s *IngestService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, documentID)
}

// List returns all documents, newest first.
func (s *IngestService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// ReconcileIndex verifies referential integrity between the chunk store
// and the vector index at startup. Orphaned vector records (no stored
// chunk) are removed; chunks whose vectors are missing mark their
// document failed so it can be re-ingested.
func (s *IngestService) ReconcileIndex(ctx context.Context) error {
	logger.Section("Index Reconciliation")
	start := time.Now()

	storeIDs, err := s.docStore.ListVectorIDs(ctx)
	if err != nil {
		return fmt.Errorf("list stored vector IDs: %w", err)
	}

	known := make(map[int64]struct{}, len(storeIDs))
	for _, id := range storeIDs {
		known[id] = struct{}{}
	}

	// Vectors with no stored chunk: drop every record of the owning
	// document so a search can never surface deleted text.
	type ownerLister interface{ VectorOwners() map[int64]string }
	lister, ok := s.vectorIndex.(ownerLister)
	if !ok {
		logger.Debug("Vector index does not expose owners, skipping reconciliation")
		return nil
	}

	owners := lister.VectorOwners()
	indexed := make(map[int64]struct{}, len(owners))
	orphanDocs := make(map[string]struct{})
	for id, docID := range owners {
		indexed[id] = struct{}{}
		if _, ok := known[id]; !ok {
			orphanDocs[docID] = struct{}{}
		}
	}

	for docID := range orphanDocs {
		if _, err := s.vectorIndex.DeleteByDocument(ctx, docID); err != nil {
			return fmt.Errorf("remove orphaned vectors for %s: %w", docID, err)
		}
		logger.Warn("Removed orphaned vector records for %s", docID)
	}

	// Chunks whose vectors are missing: their document is no longer
	// fully searchable, mark it failed.
	for _, id := range storeIDs {
		if _, ok := indexed[id]; ok {
			continue
		}
		chunk, err := s.docStore.GetChunkByVectorID(ctx, id)
		if err != nil {
			continue
		}
		doc, err := s.docStore.GetDocument(ctx, chunk.DocumentID)
		if err != nil || doc.Status == domain.DocumentFailed {
			continue
		}
		doc.Status = domain.DocumentFailed
		doc.Error = "vector records missing; re-ingest this document"
		if err := s.docStore.SaveDocument(ctx, doc); err != nil {
			return fmt.Errorf("mark %s failed: %w", doc.ID, err)
		}
		logger.Warn("Document %s has missing vectors, marked failed", doc.ID)
	}

	logger.Debug("Reconciliation finished in %s", time.Since(start))
	return nil
}
