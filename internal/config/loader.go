package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values for Config.
const (
	DefaultMaxIterations  = 50
	DefaultReadyTimeoutMS = 30000
	DefaultAgentBinary    = "claude"
	DefaultSandboxBranch  = "main"
)

// Dir is the per-project directory holding configuration and run state.
const Dir = ".ralph"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Limits: Limits{MaxIterations: DefaultMaxIterations},
		Agent:  Agent{Binary: DefaultAgentBinary},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Path returns the config file path for the given project root.
func Path(basePath string) string {
	return filepath.Join(basePath, Dir, "config.yaml")
}

// Load reads and parses .ralph/config.yaml from the given base path.
// If the file doesn't exist, returns default config.
func Load(basePath string) (*Config, error) {
	data, err := os.ReadFile(Path(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Agent.Binary == "" {
		cfg.Agent.Binary = DefaultAgentBinary
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to .ralph/config.yaml.
func Save(basePath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Join(basePath, Dir), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(Path(basePath), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that all config values are valid.
func Validate(cfg *Config) error {
	if cfg.Limits.MaxIterations <= 0 {
		return ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	}

	seen := make(map[string]bool, len(cfg.Services))
	for i, svc := range cfg.Services {
		field := fmt.Sprintf("services[%d]", i)
		if svc.Name == "" {
			return ValidationError{Field: field + ".name", Message: "required field is empty"}
		}
		if seen[svc.Name] {
			return ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate service %q", svc.Name)}
		}
		seen[svc.Name] = true
		if svc.Command == "" {
			return ValidationError{Field: field + ".command", Message: "required field is empty"}
		}
		if svc.ReadyTimeoutMS < 0 {
			return ValidationError{Field: field + ".ready_timeout_ms", Message: "must not be negative"}
		}
		if svc.ReadyPattern != "" {
			if _, err := regexp.Compile(svc.ReadyPattern); err != nil {
				return ValidationError{Field: field + ".ready_pattern", Message: err.Error()}
			}
		}
	}

	for name, server := range cfg.MCP.Servers {
		if server.Command == "" {
			return ValidationError{Field: "mcp.servers." + name + ".command", Message: "required field is empty"}
		}
	}

	return nil
}

// LoadEnvFile parses .ralph/.env into a map of key-value pairs.
// The file format is KEY=VALUE per line. Lines starting with # are comments.
// A missing file yields an empty map.
func LoadEnvFile(basePath string) (map[string]string, error) {
	envPath := filepath.Join(basePath, Dir, ".env")

	file, err := os.Open(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer file.Close()

	env := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid env file line %d: missing '='", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if key == "" {
			return nil, fmt.Errorf("invalid env file line %d: empty key", lineNum)
		}

		env[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	return env, nil
}

// Env resolves a variable from the process environment first, then from the
// values loaded out of .ralph/.env.
func Env(file map[string]string, key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return file[key]
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
