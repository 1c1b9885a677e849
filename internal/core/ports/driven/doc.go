// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Document and chunk-text persistence (SQLite)
//   - VectorIndex: Vector record storage and similarity search
//   - EmbeddingService: Generates vector embeddings
//   - ConfigStore: Application configuration
//   - QuotaStore: Daily token usage persistence
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Answer generation. Without it, retrieval still works
//     but `ask` is disabled.
//   - PromptStore: Custom prompt templates. Without it, built-in
//     defaults are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
