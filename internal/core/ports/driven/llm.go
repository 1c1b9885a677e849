package driven

import "context"

// LLMService generates answers from assembled prompts.
// This is an optional service - when nil, question answering is
// disabled but ingestion and retrieval still work.
//
// Implementations may include:
//   - OpenAI-compatible chat APIs (OpenAI, DeepSeek, Azure)
//   - Ollama (local models)
type LLMService interface {
	// Chat completes a conversation and reports token usage.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*Completion, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight
	// test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage is a single message in the wire format of the model API.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures completion behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}

// Completion is a model response with usage accounting.
type Completion struct {
	// Content is the generated text.
	Content string

	// Model is the model that produced the completion.
	Model string

	// PromptTokens is the token count of the input.
	PromptTokens int64

	// CompletionTokens is the token count of the output.
	CompletionTokens int64

	// TotalTokens is the total billed token count.
	TotalTokens int64
}
