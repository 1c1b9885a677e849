package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/ragcore/internal/core/domain"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// DefaultMaxContextChars caps the total size of source material in an
// assembled prompt.
const DefaultMaxContextChars = 6000

// fallbackAnswerPrompt is used when no PromptStore is configured.
const fallbackAnswerPrompt = `You are a helpful assistant that answers questions based on the provided document excerpts.

Rules:
1. Answer using ONLY the information in the numbered sources below
2. Cite sources inline as [Source N] where the information came from
3. If the sources do not contain the answer, say so plainly
4. Be concise and accurate; never invent facts`

// fallbackNoContextPrompt is used when no PromptStore is configured and
// retrieval came back empty.
const fallbackNoContextPrompt = `No relevant excerpts were found for this question.
Tell the user that the indexed documents contain no relevant information
for their question, and suggest rephrasing or uploading related documents.
Do not attempt to answer from general knowledge.`

// PromptAssembler composes model input from retrieved chunks and
// conversation context under a character budget.
type PromptAssembler struct {
	promptStore     driven.PromptStore
	maxContextChars int
}

// NewPromptAssembler creates a prompt assembler.
// promptStore may be nil; embedded defaults are used.
func NewPromptAssembler(promptStore driven.PromptStore, maxContextChars int) *PromptAssembler {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &PromptAssembler{
		promptStore:     promptStore,
		maxContextChars: maxContextChars,
	}
}

// Assemble builds the chat message list for a question.
//
// Retrieved chunks become numbered [Source N] blocks in ranking order.
// When the combined source text would exceed the budget, whole chunks
// are dropped lowest-ranked first; a chunk is never cut mid-text.
// History is appended in chronological order after the system message,
// trimmed oldest-first under budget pressure; sources always survive
// ahead of history.
func (a *PromptAssembler) Assemble(
	question string,
	chunks []domain.RetrievedChunk,
	history []domain.ChatMessage,
) []driven.ChatMessage {
	if len(chunks) == 0 {
		// Deliberate policy: tell the model to say nothing relevant was
		// found instead of answering from general knowledge.
		messages := []driven.ChatMessage{
			{Role: "system", Content: a.loadPrompt(driven.PromptNoContext, fallbackNoContextPrompt)},
		}
		messages = append(messages, historyMessages(history)...)
		return append(messages, driven.ChatMessage{Role: "user", Content: question})
	}

	kept := a.fitChunks(chunks)
	logger.Debug("Prompt: %d of %d chunks fit the context budget", len(kept), len(chunks))

	var sb strings.Builder
	sb.WriteString(a.loadPrompt(driven.PromptAnswerSystem, fallbackAnswerPrompt))
	sb.WriteString("\n\nSources:\n")
	for i, chunk := range kept {
		fmt.Fprintf(&sb, "\n[Source %d] (%s)\n%s\n", i+1, chunk.Filename, chunk.Chunk.Content)
	}

	messages := []driven.ChatMessage{
		{Role: "system", Content: sb.String()},
	}
	messages = append(messages, historyMessages(a.fitHistory(history, kept))...)
	return append(messages, driven.ChatMessage{Role: "user", Content: question})
}

// fitChunks keeps the highest-ranked chunks whose combined content fits
// the budget, dropping whole chunks from the bottom of the ranking.
// The top-ranked chunk is always kept so an oversized single chunk
// still yields an answerable prompt.
func (a *PromptAssembler) fitChunks(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	total := 0
	kept := make([]domain.RetrievedChunk, 0, len(chunks))
	for i, chunk := range chunks {
		size := len(chunk.Chunk.Content)
		if i > 0 && total+size > a.maxContextChars {
			break
		}
		kept = append(kept, chunk)
		total += size
	}
	return kept
}

// fitHistory trims oldest turns first when sources plus history exceed
// the budget. The newest turns survive.
func (a *PromptAssembler) fitHistory(history []domain.ChatMessage, kept []domain.RetrievedChunk) []domain.ChatMessage {
	used := 0
	for _, chunk := range kept {
		used += len(chunk.Chunk.Content)
	}

	budget := a.maxContextChars - used
	if budget <= 0 {
		return nil
	}

	// Walk backwards from the newest turn until the budget runs out.
	start := len(history)
	total := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += len(history[i].Content)
		if total > budget {
			break
		}
		start = i
	}
	if start > 0 && start < len(history) {
		logger.Debug("Prompt: trimmed %d oldest history turns", start)
	}
	return history[start:]
}

// historyMessages converts domain turns to the model wire format.
func historyMessages(history []domain.ChatMessage) []driven.ChatMessage {
	messages := make([]driven.ChatMessage, len(history))
	for i, turn := range history {
		messages[i] = driven.ChatMessage{Role: turn.Role, Content: turn.Content}
	}
	return messages
}

// loadPrompt loads a prompt from the store, falling back to the default
// if unavailable.
func (a *PromptAssembler) loadPrompt(name, fallback string) string {
	if a.promptStore == nil {
		return fallback
	}
	prompt, err := a.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}
