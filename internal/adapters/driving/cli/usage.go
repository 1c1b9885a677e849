package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var usageShowHistory bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show daily token usage",
	Long: `Shows today's token consumption against the daily budget.
The budget resets at midnight UTC.`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageShowHistory, "history", false, "include past days")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, _ []string) error {
	if usageService == nil {
		return errors.New("usage service not configured")
	}

	ctx := context.Background()
	usage, err := usageService.TokenUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token usage: %w", err)
	}

	cmd.Println("Token Usage")
	cmd.Println()
	cmd.Printf("  Used:      %d / %d (%.1f%%)\n", usage.CurrentUsage, usage.DailyLimit, usage.UsagePercent)
	cmd.Printf("  Remaining: %d\n", usage.Remaining)
	cmd.Printf("  Resets:    %s\n", usage.ResetsAt.UTC().Format("2006-01-02 15:04 MST"))

	if !usageShowHistory {
		return nil
	}

	history, err := usageService.History(ctx)
	if err != nil {
		return fmt.Errorf("failed to get usage history: %w", err)
	}
	if len(history) == 0 {
		cmd.Println("\nNo usage history yet.")
		return nil
	}

	days := make([]string, 0, len(history))
	for day := range history {
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))

	cmd.Println("\nHistory:")
	for _, day := range days {
		cmd.Printf("  %s  %d tokens\n", day, history[day])
	}
	return nil
}
