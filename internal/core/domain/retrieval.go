package domain

import "time"

// RetrieveOptions configures a retrieval query.
type RetrieveOptions struct {
	// TopK is the maximum number of chunks to retrieve.
	TopK int

	// Threshold drops results scoring below it. Scores are cosine
	// similarities, so valid thresholds lie in [-1, 1]. Zero selects
	// the default.
	Threshold float64

	// DocumentID restricts results to a single document when set.
	DocumentID string
}

// RetrievedChunk is a chunk matched by a retrieval query.
type RetrievedChunk struct {
	// Chunk is the matched chunk with its text and metadata.
	Chunk Chunk

	// Filename is the owning document's original filename.
	Filename string

	// Score is the cosine similarity against the query.
	Score float64
}

// RetrievalResult is the ranked outcome of a retrieval query.
// Scores are monotonically non-increasing. It is transient and
// never persisted.
type RetrievalResult struct {
	// Chunks are the surviving matches in index ranking order.
	Chunks []RetrievedChunk
}

// ChatMessage is a single turn of conversation context.
type ChatMessage struct {
	// Role is "user" or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// AnswerOptions configures question answering.
type AnswerOptions struct {
	// TopK is the number of context chunks to retrieve.
	TopK int

	// Threshold is the minimum similarity for a chunk to be used.
	// Zero selects the retrieval default.
	Threshold float64

	// DocumentID restricts retrieval to a single document when set.
	DocumentID string

	// History is prior conversation turns in chronological order.
	History []ChatMessage

	// MaxTokens caps the generated completion length.
	MaxTokens int

	// Temperature controls generation randomness.
	Temperature float64
}

// Source attributes part of an answer to a retrieved chunk.
type Source struct {
	// VectorID identifies the chunk.
	VectorID int64

	// DocumentID is the owning document.
	DocumentID string

	// Filename is the owning document's original filename.
	Filename string

	// ChunkIndex is the chunk's ordinal within the document.
	ChunkIndex int

	// Score is the similarity score at retrieval time.
	Score float64

	// Snippet is a short excerpt of the chunk content.
	Snippet string
}

// Answer is the result of a retrieval-augmented question.
type Answer struct {
	// Question is the question as asked.
	Question string

	// Text is the generated answer.
	Text string

	// Sources attribute the answer, in ranking order.
	Sources []Source

	// Model is the language model that generated the answer.
	Model string

	// TokensUsed is the token count reported by the model, when known.
	TokensUsed int64

	// RetrievalTime is how long retrieval took.
	RetrievalTime time.Duration

	// GenerationTime is how long generation took.
	GenerationTime time.Duration
}

// TokenUsage reports the state of the daily token budget.
type TokenUsage struct {
	// CurrentUsage is tokens consumed since the last reset.
	CurrentUsage int64

	// DailyLimit is the fixed daily budget.
	DailyLimit int64

	// Remaining is DailyLimit minus CurrentUsage.
	Remaining int64

	// UsagePercent is CurrentUsage as a percentage of DailyLimit.
	UsagePercent float64

	// ResetsAt is when the budget next resets.
	ResetsAt time.Time
}
