// Package assistant – engine.go wires the domain stores, the embedding
// provider, the pending-clarification ledger, and the resolution coordinator
// into one assistant core with explicit dependency injection.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/quillhq/quill/pkg/quill/calendar"
	"github.com/quillhq/quill/pkg/quill/mail"
	"github.com/quillhq/quill/pkg/quill/memory"
	"github.com/quillhq/quill/pkg/quill/resolve"
	"github.com/quillhq/quill/pkg/quill/tasks"
)

// Engine bundles the assistant core: every dependency is constructed here and
// handed to the coordinator and resolvers explicitly.
type Engine struct {
	Config *Config

	Memory   *memory.Store
	Calendar *calendar.Store
	Tasks    *tasks.Store
	Mail     *mail.Store
	Ledger   *resolve.SQLiteLedger

	Coordinator *resolve.Coordinator

	logger *slog.Logger
}

// Open builds the engine from config, creating the data directory and all
// SQLite databases as needed.
func Open(cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	// Credentials stored by `quill setup` live in the vault or OS keyring;
	// resolve them into the embedding config before the provider is built.
	var vault *Vault
	if v := NewVault(cfg.VaultPath()); v.Exists() {
		if pw := os.Getenv("QUILL_VAULT_PASSWORD"); pw != "" {
			if err := v.Unlock(pw); err != nil {
				logger.Warn("vault unlock failed, falling back to keyring", "error", err)
			} else {
				vault = v
			}
		}
	}
	embCfg := resolveEmbeddingKeys(cfg.Embedding, func(name string) string {
		return ResolveSecret(vault, name, name, "")
	})

	embedder := memory.NewEmbeddingProvider(embCfg)
	logger.Debug("embedding provider selected", "provider", embedder.Name(), "model", embedder.Model())

	memStore, err := memory.Open(cfg.MemoryDBPath(), embedder, logger)
	if err != nil {
		return nil, err
	}
	calStore, err := calendar.Open(cfg.CalendarDBPath(), logger)
	if err != nil {
		memStore.Close()
		return nil, err
	}
	taskStore, err := tasks.Open(cfg.TasksDBPath(), logger)
	if err != nil {
		memStore.Close()
		calStore.Close()
		return nil, err
	}
	mailStore, err := mail.Open(cfg.MailDBPath(), logger)
	if err != nil {
		memStore.Close()
		calStore.Close()
		taskStore.Close()
		return nil, err
	}
	ledger, err := resolve.OpenSQLiteLedger(cfg.LedgerDBPath(), cfg.Resolver.ClarificationTTL, logger)
	if err != nil {
		memStore.Close()
		calStore.Close()
		taskStore.Close()
		mailStore.Close()
		return nil, err
	}

	rcfg := cfg.Resolver
	coordinator := resolve.NewCoordinator(rcfg, ledger, logger,
		resolve.NewCalendarResolver(calStore, rcfg, logger),
		resolve.NewTaskResolver(taskStore, rcfg, logger),
		resolve.NewMailResolver(mailStore, rcfg, logger),
		resolve.NewMemoryResolver(memStore, rcfg, logger),
	)

	return &Engine{
		Config:      cfg,
		Memory:      memStore,
		Calendar:    calStore,
		Tasks:       taskStore,
		Mail:        mailStore,
		Ledger:      ledger,
		Coordinator: coordinator,
		logger:      logger,
	}, nil
}

// StartSweeper begins periodic cleanup of expired clarifications.
func (e *Engine) StartSweeper() error {
	return e.Ledger.StartSweeper(time.Minute)
}

// Close releases every store.
func (e *Engine) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{
		e.Ledger, e.Mail, e.Tasks, e.Calendar, e.Memory,
	} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
