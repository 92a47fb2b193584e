// Package commands – remember.go implements the non-interactive memory
// commands: add, search, and forget by id.
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillhq/quill/pkg/quill/assistant"
	"github.com/quillhq/quill/pkg/quill/memory"
)

// newRememberCmd creates the `quill remember` command group.
func newRememberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remember",
		Short: "Manage long-term memory",
	}
	cmd.AddCommand(newRememberAddCmd(), newRememberSearchCmd(), newRememberForgetCmd())
	return cmd
}

// newRememberAddCmd stores one memory entry directly, bypassing resolution.
// Conflict-checked writes go through `quill chat` instead.
func newRememberAddCmd() *cobra.Command {
	var kind, subject string
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory entry",
		Long: `Stores a memory entry without conflict checking.

Examples:
  quill remember add "prefers answers in Portuguese"
  quill remember add --kind fact --subject haircuts "4 haircuts this month"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := assistant.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			userID, _ := cmd.Flags().GetString("user")
			m := &memory.Memory{
				UserID:  userID,
				Kind:    kind,
				Content: strings.Join(args, " "),
				Subject: subject,
			}
			if err := engine.Memory.Save(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Printf("remembered (%s): %s\n", m.Kind, m.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", memory.KindNote, "memory kind: note, contact or fact")
	cmd.Flags().StringVar(&subject, "subject", "", "normalized subject (fact kind)")
	return cmd
}

// newRememberSearchCmd runs a hybrid search over stored memories.
func newRememberSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := assistant.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			userID, _ := cmd.Flags().GetString("user")
			hits, err := engine.Memory.Search(cmd.Context(), userID, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("nothing found")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%.2f  [%s] %s  (%s)\n", h.Score, h.Kind, h.Content, h.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

// newRememberForgetCmd deletes a memory entry by id.
func newRememberForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a memory entry by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := assistant.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			userID, _ := cmd.Flags().GetString("user")
			if err := engine.Memory.Delete(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Println("forgotten")
			return nil
		},
	}
}
