// Package driving defines the interfaces that the outside world uses
// to call INTO the core.
//
// These are the "driving" or "primary" ports in hexagonal architecture.
// The CLI adapter (and the excluded HTTP API layer) depend on these
// interfaces; core services implement them.
//
//   - IngestService: Document ingestion and deletion
//   - Retriever: Similarity retrieval over the index
//   - AnswerService: Retrieval-augmented question answering
//   - UsageService: Token budget reporting
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driving
