// Package commands implements the Quill CLI commands using cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/pkg/quill/assistant"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - local-first personal assistant core",
		Long: `Quill resolves natural-language references to your events, tasks, mail
and memories into concrete actions, asking for clarification when a
reference is ambiguous.

Examples:
  quill chat
  quill remember fact "4 haircuts this month" --subject haircuts
  quill config init`,
		Version: version,
	}

	rootCmd.AddCommand(
		newChatCmd(),
		newRememberCmd(),
		newConfigCmd(),
		newSetupCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringP("user", "u", "local", "user identity for multi-user stores")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// loadConfig resolves the config file flag and loads (or defaults) the config.
func loadConfig(cmd *cobra.Command) (*assistant.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = "quill.yaml"
	}
	if _, err := os.Stat(path); err != nil {
		// No config file: run on defaults.
		return assistant.DefaultConfig(), nil
	}
	return assistant.LoadConfigFromFile(path)
}

// setupLogger configures slog according to the verbose flag.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
