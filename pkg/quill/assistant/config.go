// Package assistant – config.go defines the configuration structures for the
// Quill assistant core.
package assistant

import (
	"path/filepath"

	"github.com/quillhq/quill/pkg/quill/memory"
	"github.com/quillhq/quill/pkg/quill/resolve"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in responses.
	Name string `yaml:"name"`

	// Timezone is the user's timezone (e.g. "America/Sao_Paulo").
	Timezone string `yaml:"timezone"`

	// Language is the preferred response language (e.g. "en", "pt-BR").
	Language string `yaml:"language"`

	// DataDir is where the SQLite databases live.
	DataDir string `yaml:"data_dir"`

	// Resolver configures the entity resolution engine thresholds.
	Resolver resolve.Config `yaml:"resolver"`

	// Embedding configures the semantic memory embedding provider.
	Embedding memory.EmbeddingConfig `yaml:"embedding"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:      "Quill",
		Timezone:  "UTC",
		Language:  "en",
		DataDir:   ".quill",
		Resolver:  resolve.DefaultConfig(),
		Embedding: memory.DefaultEmbeddingConfig(),
	}
}

// MemoryDBPath returns the semantic memory database path.
func (c *Config) MemoryDBPath() string { return filepath.Join(c.DataDir, "memory.db") }

// CalendarDBPath returns the calendar database path.
func (c *Config) CalendarDBPath() string { return filepath.Join(c.DataDir, "calendar.db") }

// TasksDBPath returns the tasks database path.
func (c *Config) TasksDBPath() string { return filepath.Join(c.DataDir, "tasks.db") }

// MailDBPath returns the mail index database path.
func (c *Config) MailDBPath() string { return filepath.Join(c.DataDir, "mail.db") }

// LedgerDBPath returns the pending-clarification ledger database path.
func (c *Config) LedgerDBPath() string { return filepath.Join(c.DataDir, "ledger.db") }

// VaultPath returns the encrypted credential vault path.
func (c *Config) VaultPath() string { return filepath.Join(c.DataDir, ".quill.vault") }
