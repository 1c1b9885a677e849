package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/core/ports/driving"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.Retriever = (*RetrievalService)(nil)

// Retrieval defaults.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.1
)

// RetrievalService answers similarity queries over the vector index.
type RetrievalService struct {
	docStore         driven.DocumentStore
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
) *RetrievalService {
	return &RetrievalService{
		docStore:         docStore,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
	}
}

// Retrieve embeds the query, searches the index, and hydrates the hits.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieval")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if s.embeddingService == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrEmbeddingUnavailable)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [-1, 1]", domain.ErrInvalidInput, threshold)
	}
	logger.Debug("Query: %q, topK: %d, threshold: %v", query, topK, threshold)

	if s.vectorIndex.Len() == 0 {
		logger.Debug("Index is empty")
		return &domain.RetrievalResult{}, nil
	}

	embedding, err := s.embeddingService.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Over-fetch when scoped to one document: the filter runs after the
	// index search, which ranks across all documents.
	searchK := topK
	if opts.DocumentID != "" {
		searchK = topK * 4
	}

	hits, err := s.vectorIndex.Search(ctx, embedding, searchK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Index returned %d hits", len(hits))

	result := &domain.RetrievalResult{}
	for _, hit := range hits {
		if hit.Score < threshold {
			// Hits are sorted descending; nothing below survives.
			break
		}
		if opts.DocumentID != "" && hit.DocumentID != opts.DocumentID {
			continue
		}

		chunk, err := s.docStore.GetChunkByVectorID(ctx, hit.VectorID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Chunk deleted after the search snapshot; skip it.
				logger.Debug("Vector %d has no chunk, skipping", hit.VectorID)
				continue
			}
			return nil, fmt.Errorf("resolve chunk for vector %d: %w", hit.VectorID, err)
		}

		filename := ""
		if doc, err := s.docStore.GetDocument(ctx, chunk.DocumentID); err == nil {
			filename = doc.Filename
		}

		result.Chunks = append(result.Chunks, domain.RetrievedChunk{
			Chunk:    *chunk,
			Filename: filename,
			Score:    hit.Score,
		})
		if len(result.Chunks) >= topK {
			break
		}
	}

	logger.Info("Retrieved %d chunks", len(result.Chunks))
	return result, nil
}
