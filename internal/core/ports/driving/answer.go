package driving

import (
	"context"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

// Retriever executes similarity queries against the vector index.
type Retriever interface {
	// Retrieve embeds the query, searches the index, filters by the
	// similarity threshold and optional document scope, and resolves
	// the surviving hits to chunk text and metadata. An empty index or
	// all-below-threshold results yield an empty result, not an error.
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error)
}

// AnswerService answers questions grounded in retrieved context.
type AnswerService interface {
	// Answer retrieves context for the question, assembles a prompt,
	// calls the language model, and records token usage. It fails with
	// domain.ErrQuotaExceeded before the model call when the daily
	// budget cannot cover the request.
	Answer(ctx context.Context, question string, opts domain.AnswerOptions) (*domain.Answer, error)
}

// UsageService reports the daily token budget.
type UsageService interface {
	// TokenUsage returns the current budget state.
	TokenUsage(ctx context.Context) (domain.TokenUsage, error)

	// History returns finished days' token totals keyed by date
	// (YYYY-MM-DD).
	History(ctx context.Context) (map[string]int64, error)
}
