// Package cli implements the ragcore command line interface.
//
// Commands talk to the core services through the driving ports and
// never reach into adapters directly. Services are wired once per
// process by bootstrap; tests inject stubs instead.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/config/file"
	ollamaembed "github.com/custodia-labs/ragcore/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragcore/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/ragcore/internal/adapters/driven/embedding/retry"
	"github.com/custodia-labs/ragcore/internal/adapters/driven/index/flat"
	"github.com/custodia-labs/ragcore/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/ragcore/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragcore/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragcore/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragcore/internal/chunker"
	"github.com/custodia-labs/ragcore/internal/core/ports/driven"
	"github.com/custodia-labs/ragcore/internal/core/ports/driving"
	"github.com/custodia-labs/ragcore/internal/core/services"
	"github.com/custodia-labs/ragcore/internal/logger"
)

// version is stamped at release time.
var version = "0.1.0"

// verbose enables debug logging on stderr.
var verbose bool

// Services the commands run against. Set by bootstrap, or by tests.
var (
	configStore   driven.ConfigStore
	ingestService driving.IngestService
	answerService driving.AnswerService
	usageService  driving.UsageService
)

// cleanup releases resources acquired by bootstrap.
var cleanup func()

// bootstrapped short-circuits bootstrap once services are wired.
var bootstrapped bool

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `ragcore ingests plain-text documents, splits them into overlapping
chunks, embeds each chunk, and answers questions grounded in the most
relevant excerpts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		return bootstrap(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the CLI and releases resources when it returns.
func Execute() error {
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()
	return rootCmd.Execute()
}

// bootstrap wires the adapters and core services. Missing provider
// credentials degrade the affected service instead of failing startup,
// so configuration commands keep working on a fresh install.
func bootstrap(ctx context.Context) error {
	if bootstrapped {
		return nil
	}

	cfg, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	configStore = cfg

	store, err := sqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}

	idx, err := flat.Load(filepath.Join(filepath.Dir(store.Path()), "vectors.idx"))
	if err != nil {
		store.Close()
		return fmt.Errorf("load vector index: %w", err)
	}

	splitter, err := chunker.New(
		chunker.WithChunkSize(cfg.GetInt(file.KeyChunkSize)),
		chunker.WithOverlap(cfg.GetInt(file.KeyChunkOverlap)),
	)
	if err != nil {
		store.Close()
		return fmt.Errorf("configure chunker: %w", err)
	}

	embedder := buildEmbedding(cfg)
	llm := buildLLM(cfg)

	prompts, stopPromptWatch := buildPrompts("")

	ingest := services.NewIngestService(store.DocumentStore(), idx, embedder, splitter)
	retrieval := services.NewRetrievalService(store.DocumentStore(), idx, embedder)
	governor := services.NewTokenGovernor(store.QuotaStore(), int64(cfg.GetInt(file.KeyDailyTokenLimit)))
	assembler := services.NewPromptAssembler(prompts, cfg.GetInt(file.KeyMaxContextChars))

	ingestService = ingest
	answerService = services.NewAnswerService(retrieval, assembler, governor, llm)
	usageService = governor

	if err := ingest.ReconcileIndex(ctx); err != nil {
		logger.Warn("Index reconciliation: %v", err)
	}

	cleanup = func() {
		if stopPromptWatch != nil {
			stopPromptWatch()
		}
		if err := idx.Close(); err != nil {
			logger.Warn("Saving vector index: %v", err)
		}
		if err := store.Close(); err != nil {
			logger.Warn("Closing metadata store: %v", err)
		}
	}
	bootstrapped = true
	return nil
}

// buildPrompts constructs the file-based prompt store and starts its
// hot-reload watcher, so edits to the prompt files take effect while
// a command is still running. Either piece may fail without failing
// startup; the embedded defaults cover a missing store, and a dead
// watcher only means edits wait for the next run.
func buildPrompts(dir string) (driven.PromptStore, func()) {
	ps, err := file.NewPromptStore(dir)
	if err != nil {
		logger.Warn("Prompt templates unavailable, using embedded defaults: %v", err)
		return nil, nil
	}

	stop, err := ps.Watch()
	if err != nil {
		logger.Warn("Prompt hot-reload unavailable: %v", err)
		return ps, nil
	}
	return ps, stop
}

// buildEmbedding constructs the configured embedding provider wrapped
// with retry and rate limiting. Returns nil when the provider cannot
// be configured; ingestion and retrieval then report the gap.
func buildEmbedding(cfg driven.ConfigStore) driven.EmbeddingService {
	var inner driven.EmbeddingService

	switch provider := cfg.GetString(file.KeyEmbeddingProvider); provider {
	case "ollama":
		inner = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.GetString(file.KeyEmbeddingBaseURL),
			Model:      cfg.GetString(file.KeyEmbeddingModel),
			Dimensions: cfg.GetInt(file.KeyEmbeddingDimensions),
		})
	default:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     cfg.GetString(file.KeyEmbeddingAPIKey),
			BaseURL:    cfg.GetString(file.KeyEmbeddingBaseURL),
			Model:      cfg.GetString(file.KeyEmbeddingModel),
			Dimensions: cfg.GetInt(file.KeyEmbeddingDimensions),
		})
		if err != nil {
			logger.Warn("Embedding provider %q not configured: %v", provider, err)
			return nil
		}
		inner = svc
	}

	return retry.New(inner, retry.DefaultConfig())
}

// buildLLM constructs the configured language model provider. Returns
// nil when credentials are missing; ask then fails with a clear error.
func buildLLM(cfg driven.ConfigStore) driven.LLMService {
	switch provider := cfg.GetString(file.KeyLLMProvider); provider {
	case "ollama":
		return ollamallm.New(ollamallm.Config{
			BaseURL: cfg.GetString(file.KeyLLMBaseURL),
			Model:   cfg.GetString(file.KeyLLMModel),
		})
	case "anthropic":
		svc, err := anthropic.New(anthropic.Config{
			APIKey:  cfg.GetString(file.KeyLLMAPIKey),
			BaseURL: cfg.GetString(file.KeyLLMBaseURL),
			Model:   cfg.GetString(file.KeyLLMModel),
		})
		if err != nil {
			logger.Warn("LLM provider %q not configured: %v", provider, err)
			return nil
		}
		return svc
	default:
		svc, err := openaillm.New(openaillm.Config{
			APIKey:  cfg.GetString(file.KeyLLMAPIKey),
			BaseURL: cfg.GetString(file.KeyLLMBaseURL),
			Model:   cfg.GetString(file.KeyLLMModel),
		})
		if err != nil {
			logger.Warn("LLM provider %q not configured: %v", provider, err)
			return nil
		}
		return svc
	}
}
