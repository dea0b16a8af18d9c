package sprite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// GitConfigLookup returns a local git config value, or "" when unset.
type GitConfigLookup func(key string) (string, error)

// SetupGitConfig copies user.name and user.email from the local git config to
// GitConfigPath on the Sprite so commits made there carry the same identity.
// A nil lookup reads the local git config.
func SetupGitConfig(ctx context.Context, client Client, spriteName string, lookup GitConfigLookup) error {
	if lookup == nil {
		lookup = localGitConfig
	}

	for _, key := range []string{"user.name", "user.email"} {
		value, err := lookup(key)
		if err != nil {
			return fmt.Errorf("failed to get local git %s: %w", key, err)
		}
		if value == "" {
			continue
		}
		_, stderr, exitCode, err := client.ExecuteOutput(ctx, spriteName, "", nil, "git", "config", "--file", GitConfigPath, key, value)
		if err != nil {
			return fmt.Errorf("failed to set git %s: %w", key, err)
		}
		if exitCode != 0 {
			return fmt.Errorf("git config %s failed with exit code %d: %s", key, exitCode, bytes.TrimSpace(stderr))
		}
	}
	return nil
}

func localGitConfig(key string) (string, error) {
	output, err := exec.Command("git", "config", "--get", key).Output()
	if err != nil {
		// git config --get exits 1 when the key is unset.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return string(bytes.TrimSpace(output)), nil
}
