package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragcore/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a plain-text document",
	Long: `Reads a plain-text file, splits it into overlapping chunks, embeds
each chunk, and indexes the result for retrieval.

Text extraction from binary formats (PDF, DOCX) is out of scope;
convert to plain text first.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingest service not configured")
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx := context.Background()
	doc, err := ingestService.Ingest(ctx, filepath.Base(path), string(data))
	if err != nil {
		if doc != nil && doc.Status == domain.DocumentFailed {
			cmd.PrintErrf("Document %s marked failed: %s\n", doc.ID, doc.Error)
		}
		return fmt.Errorf("ingest failed: %w", err)
	}

	cmd.Printf("Ingested %s\n", doc.Filename)
	cmd.Printf("  ID:     %s\n", doc.ID)
	cmd.Printf("  Status: %s\n", doc.Status)
	cmd.Printf("  Chunks: %d\n", doc.ChunkCount)
	return nil
}
