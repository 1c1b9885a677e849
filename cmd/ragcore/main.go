// Command ragcore ingests plain-text documents and answers questions
// grounded in the most relevant excerpts.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/ragcore/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
