package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ragcore/internal/adapters/driven/config/file"
)

// configKeys lists the known keys in display order.
var configKeys = []string{
	file.KeyChunkSize,
	file.KeyChunkOverlap,
	file.KeyTopK,
	file.KeySimilarityThreshold,
	file.KeyMaxContextChars,
	file.KeyDailyTokenLimit,
	file.KeyLLMProvider,
	file.KeyLLMBaseURL,
	file.KeyLLMModel,
	file.KeyLLMAPIKey,
	file.KeyLLMMaxTokens,
	file.KeyEmbeddingProvider,
	file.KeyEmbeddingBaseURL,
	file.KeyEmbeddingModel,
	file.KeyEmbeddingAPIKey,
	file.KeyEmbeddingDimensions,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and set configuration values. Values are persisted immediately.`,
	RunE:  runConfigList,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	RunE:  runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret [key]",
	Short: "Set a secret value without echoing it",
	Long:  `Prompts for a value with terminal echo disabled. Use this for API keys so they never land in shell history.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetSecret,
}

func init() {
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigList(cmd *cobra.Command, _ []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	for _, key := range configKeys {
		value, ok := configStore.Get(key)
		if !ok {
			cmd.Printf("%s = (not set)\n", key)
			continue
		}
		cmd.Printf("%s = %v\n", key, displayValue(key, value))
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := args[0]
	value, ok := configStore.Get(key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	cmd.Printf("%v\n", displayValue(key, value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key, raw := args[0], args[1]
	if err := configStore.Set(key, parseConfigValue(raw)); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("%s = %v\n", key, displayValue(key, parseConfigValue(raw)))
	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}

	key := args[0]
	cmd.Printf("Value for %s: ", key)

	value, err := readSecret(cmd)
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}
	if value == "" {
		return errors.New("empty value")
	}

	if err := configStore.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("%s = %s\n", key, maskAPIKey(value))
	return nil
}

// readSecret reads a line without echo when stdin is a terminal, and
// falls back to a plain read when it is piped.
func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// parseConfigValue converts a command line string to the narrowest
// matching type.
func parseConfigValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// displayValue masks secrets.
func displayValue(key string, value any) any {
	if !strings.HasSuffix(key, "api_key") {
		return value
	}
	s, _ := value.(string)
	return maskAPIKey(s)
}

func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
