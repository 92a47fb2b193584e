// Package commands – config.go implements config inspection and scaffolding.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quillhq/quill/pkg/quill/assistant"
)

// newConfigCmd creates the `quill config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigInitCmd(), newConfigPathCmd())
	return cmd
}

// newConfigPathCmd prints the config file path in effect.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path in effect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = "quill.yaml"
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			fmt.Println(abs)
			return nil
		},
	}
}

// newConfigShowCmd prints the effective configuration as YAML.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

// newConfigInitCmd writes a default quill.yaml.
func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default quill.yaml in the current directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = "quill.yaml"
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := assistant.SaveConfigToFile(assistant.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}
