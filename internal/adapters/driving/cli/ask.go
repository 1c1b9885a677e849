package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragcore/internal/core/domain"
)

var (
	askTopK      int
	askThreshold float64
	askDocument  string
	askMaxTokens int
	askJSON      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question over the indexed documents",
	Long: `Retrieves the chunks most similar to the question, builds a
source-grounded prompt, and asks the configured language model.
The answer cites its sources as [Source N].`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of context chunks to retrieve")
	askCmd.Flags().Float64VarP(&askThreshold, "threshold", "t", 0, "minimum similarity score [-1, 1]")
	askCmd.Flags().StringVarP(&askDocument, "document", "d", "", "restrict retrieval to one document ID")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "completion token cap")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errors.New("answer service not configured")
	}

	opts := domain.AnswerOptions{
		TopK:       askTopK,
		Threshold:  askThreshold,
		DocumentID: askDocument,
		MaxTokens:  askMaxTokens,
	}
	// Flags win over configuration; configuration wins over defaults.
	if configStore != nil {
		if !cmd.Flags().Changed("top-k") {
			opts.TopK = configStore.GetInt(file.KeyTopK)
		}
		if !cmd.Flags().Changed("threshold") {
			opts.Threshold = configStore.GetFloat(file.KeySimilarityThreshold)
		}
		if !cmd.Flags().Changed("max-tokens") {
			opts.MaxTokens = configStore.GetInt(file.KeyLLMMaxTokens)
		}
	}

	answer, err := answerService.Answer(context.Background(), args[0], opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			return errors.New("daily token budget exhausted; try again after it resets")
		case errors.Is(err, domain.ErrLLMUnavailable):
			return errors.New("no language model configured; set llm.api_key with 'ragcore config set'")
		}
		return fmt.Errorf("ask failed: %w", err)
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	return outputAnswerText(cmd, answer)
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	data, err := json.MarshalIndent(answer, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputAnswerText(cmd *cobra.Command, answer *domain.Answer) error {
	cmd.Println(answer.Text)

	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i := range answer.Sources {
			src := &answer.Sources[i]
			cmd.Printf("  [%d] %s (%.2f)\n", i+1, src.Filename, src.Score)
			if src.Snippet != "" {
				cmd.Printf("      %s\n", src.Snippet)
			}
		}
	}

	cmd.Println()
	cmd.Printf("Model: %s, tokens: %d, retrieval: %s, generation: %s\n",
		answer.Model, answer.TokensUsed,
		answer.RetrievalTime.Round(time.Millisecond),
		answer.GenerationTime.Round(time.Millisecond))
	return nil
}
