package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/core/ports/driving"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// snippetLength bounds source excerpts in answer attributions.
const snippetLength = 160

// AnswerService answers questions grounded in retrieved context.
type AnswerService struct {
	retriever driving.Retriever
	assembler *PromptAssembler
	governor  *TokenGovernor
	llm       driven.LLMService
}

// NewAnswerService creates an answer service.
// llm may be nil; Answer then fails with domain.ErrLLMUnavailable.
func NewAnswerService(
	retriever driving.Retriever,
	assembler *PromptAssembler,
	governor *TokenGovernor,
	llm driven.LLMService,
) *AnswerService {
	return &AnswerService{
		retriever: retriever,
		assembler: assembler,
		governor:  governor,
		llm:       llm,
	}
}

// Answer retrieves context, assembles a prompt, calls the model, and
// records token usage.
func (s *AnswerService) Answer(ctx context.Context, question string, opts domain.AnswerOptions) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	if s.llm == nil {
		return nil, fmt.Errorf("%w: no model configured", domain.ErrLLMUnavailable)
	}

	logger.Section("Answer")
	logger.Debug("Question: %q", question)

	retrievalStart := time.Now()
	result, err := s.retriever.Retrieve(ctx, question, domain.RetrieveOptions{
		TopK:       opts.TopK,
		Threshold:  opts.Threshold,
		DocumentID: opts.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	retrievalTime := time.Since(retrievalStart)

	messages := s.assembler.Assemble(question, result.Chunks, opts.History)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	estimated := EstimateTokens(messages, maxTokens)
	if !s.governor.CheckAndReserve(ctx, estimated) {
		return nil, fmt.Errorf("%w: daily token budget exhausted", domain.ErrQuotaExceeded)
	}

	generationStart := time.Now()
	completion, err := s.llm.Chat(ctx, messages, driven.ChatOptions{
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		// The model never ran to completion; release the reservation.
		s.governor.Record(ctx, 0, estimated)
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	generationTime := time.Since(generationStart)

	s.governor.Record(ctx, completion.TotalTokens, estimated)
	logger.Info("Answered with %s: %d tokens", completion.Model, completion.TotalTokens)

	return &domain.Answer{
		Question:       question,
		Text:           completion.Content,
		Sources:        buildSources(result.Chunks),
		Model:          completion.Model,
		TokensUsed:     completion.TotalTokens,
		RetrievalTime:  retrievalTime,
		GenerationTime: generationTime,
	}, nil
}

// buildSources converts retrieved chunks into answer attributions.
func buildSources(chunks []domain.RetrievedChunk) []domain.Source {
	sources := make([]domain.Source, len(chunks))
	for i, chunk := range chunks {
		sources[i] = domain.Source{
			VectorID:   chunk.Chunk.VectorID,
			DocumentID: chunk.Chunk.DocumentID,
			Filename:   chunk.Filename,
			ChunkIndex: chunk.Chunk.Index,
			Score:      chunk.Score,
			Snippet:    snippet(chunk.Chunk.Content),
		}
	}
	return sources
}

// snippet shortens content for display, cutting on a rune boundary.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}
	return string(runes[:snippetLength]) + "..."
}
