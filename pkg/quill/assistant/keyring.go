// Package assistant – keyring.go provides secure credential storage using the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving secrets:
//  1. Encrypted vault (.quill.vault — AES-256-GCM + Argon2id, master password)
//  2. OS keyring (encrypted by the OS, requires user session)
//  3. Environment variable (OPENAI_API_KEY, GOOGLE_API_KEY, etc.)
//  4. .env file (loaded by godotenv)
//  5. config.yaml value (least secure — plaintext on disk)
package assistant

import (
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/quillhq/quill/pkg/quill/memory"
)

// keyringService is the service name used in the OS keyring.
const keyringService = "quill"

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__quill_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecret looks a secret up through the storage priority chain:
// vault (when unlocked), keyring, environment variable, configured value.
func ResolveSecret(vault *Vault, key, envVar, configured string) string {
	if vault != nil && vault.IsUnlocked() {
		if v, err := vault.Get(key); err == nil && v != "" {
			return v
		}
	}
	if v := GetKeyring(key); v != "" {
		return v
	}
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return configured
}

// embeddingKeyVars maps embedding providers to their conventional env vars,
// which double as keyring and vault entry names.
var embeddingKeyVars = map[string]string{
	"openai":  "OPENAI_API_KEY",
	"gemini":  "GOOGLE_API_KEY",
	"google":  "GOOGLE_API_KEY",
	"voyage":  "VOYAGE_API_KEY",
	"mistral": "MISTRAL_API_KEY",
}

// EmbeddingKeyVar returns the credential name for an embedding provider, or
// "" for providers without one ("none", "auto").
func EmbeddingKeyVar(provider string) string {
	return embeddingKeyVars[strings.ToLower(provider)]
}

// secretLookup resolves one named credential. The engine passes the
// vault/keyring/env chain; tests pass fakes.
type secretLookup func(name string) string

// resolveEmbeddingKeys fills empty API keys in the embedding config from the
// secret chain, so credentials stored by `quill setup` are consumed. For the
// "auto" provider it walks the known providers in priority order and pins the
// first one with a stored credential; with none found the config passes
// through unchanged and the factory degrades to keyword-only search.
func resolveEmbeddingKeys(cfg memory.EmbeddingConfig, lookup secretLookup) memory.EmbeddingConfig {
	if cfg.APIKey == "" {
		switch strings.ToLower(cfg.Provider) {
		case "auto", "":
			for _, p := range []string{"openai", "gemini", "voyage", "mistral"} {
				if key := lookup(embeddingKeyVars[p]); key != "" {
					cfg.Provider = p
					cfg.APIKey = key
					break
				}
			}
		default:
			if name := EmbeddingKeyVar(cfg.Provider); name != "" {
				cfg.APIKey = lookup(name)
			}
		}
	}
	if cfg.FallbackAPIKey == "" && cfg.Fallback != "" {
		if name := EmbeddingKeyVar(cfg.Fallback); name != "" {
			cfg.FallbackAPIKey = lookup(name)
		}
	}
	return cfg
}
