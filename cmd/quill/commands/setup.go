// Package commands – setup.go implements the interactive credential setup:
// picks an embedding provider and stores its API key in the OS keyring or,
// when no keyring is available, in the encrypted vault file.
package commands

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/quillhq/quill/pkg/quill/assistant"
)

// newSetupCmd creates the `quill setup` command.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Configure embedding provider credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			var provider, apiKey string
			form := huh.NewForm(huh.NewGroup(
				huh.NewSelect[string]().
					Title("Embedding provider").
					Options(
						huh.NewOption("OpenAI", "openai"),
						huh.NewOption("Google Gemini", "gemini"),
						huh.NewOption("Voyage AI", "voyage"),
						huh.NewOption("Mistral", "mistral"),
					).
					Value(&provider),
				huh.NewInput().
					Title("API key").
					EchoMode(huh.EchoModePassword).
					Value(&apiKey),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if apiKey == "" {
				return fmt.Errorf("no API key given")
			}

			keyName := assistant.EmbeddingKeyVar(provider)
			if assistant.KeyringAvailable() {
				if err := assistant.StoreKeyring(keyName, apiKey); err != nil {
					return fmt.Errorf("storing key in keyring: %w", err)
				}
				fmt.Printf("stored %s in the OS keyring\n", keyName)
				return nil
			}

			// No keyring: fall back to the encrypted vault.
			vault := assistant.NewVault(cfg.VaultPath())
			if vault.Exists() {
				pw, err := assistant.PromptPassword("vault password: ")
				if err != nil {
					return err
				}
				if err := vault.Unlock(pw); err != nil {
					return err
				}
			} else {
				pw, err := assistant.PromptPassword("new vault password: ")
				if err != nil {
					return err
				}
				if err := vault.Create(pw); err != nil {
					return err
				}
			}
			if err := vault.Set(keyName, apiKey); err != nil {
				return err
			}
			fmt.Printf("stored %s in %s\n", keyName, cfg.VaultPath())
			return nil
		},
	}
}
