// Package assistant – loader.go loads configuration from YAML files with
// credential management via environment variables and .env files.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable (no default/error support)
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
// Returns an error if any ${VAR:?error} pattern has its variable unset.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	// Resolve the data dir relative to the config file location.
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(filepath.Dir(path), cfg.DataDir)
	}

	checkFilePermissions(path)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config, overlaying defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML to the specified path.
func SaveConfigToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env files from the working directory (silently ignores
// when absent). Existing environment variables are never overridden.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// expandEnvVars expands ${VAR}, ${VAR:-default} and ${VAR:?error} patterns.
func expandEnvVars(content string) (string, error) {
	var expandErr error
	expanded := envVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := envVarPattern.FindStringSubmatch(m)

		name := groups[1]
		if name == "" {
			name = groups[4] // bare $VAR form
		}
		value, set := os.LookupEnv(name)

		switch groups[2] {
		case "-":
			if !set || value == "" {
				return groups[3]
			}
		case "?":
			if !set || value == "" {
				msg := groups[3]
				if msg == "" {
					msg = "required but not set"
				}
				if expandErr == nil {
					expandErr = fmt.Errorf("environment variable %s: %s", name, msg)
				}
				return ""
			}
		}
		return value
	})
	return expanded, expandErr
}

// checkFilePermissions warns when the config file is readable by others,
// since it may contain expanded credentials.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 && strings.HasSuffix(path, ".yaml") {
		slog.Warn("config file is readable by other users, consider chmod 600",
			"path", path, "mode", fmt.Sprintf("%04o", mode))
	}
}
