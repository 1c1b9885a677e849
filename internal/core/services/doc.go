// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters): the ingestion pipeline,
// retrieval, prompt assembly, answering, and the token budget.
//
// Services are pure Go with no CGO or external dependencies.
package services
