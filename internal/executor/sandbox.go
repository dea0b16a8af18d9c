package executor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/sprite"
)

// DefaultSandboxSetup installs the agent on a fresh sprite.
var DefaultSandboxSetup = []string{"npm install -g @anthropic-ai/claude-code"}

// SandboxOptions configures a Sandbox executor.
type SandboxOptions struct {
	// Name of the sprite. Empty derives one from RepoURL and Branch.
	Name       string
	RepoURL    string
	Branch     string
	Checkpoint string
	// Env is passed to every command. It must carry ANTHROPIC_API_KEY and
	// GH_TOKEN.
	Env map[string]string
	// Setup runs after the clone. Nil uses DefaultSandboxSetup.
	Setup  []string
	Binary string
	// GitConfig looks up the local git identity copied to the sprite. Nil
	// reads the local git config.
	GitConfig sprite.GitConfigLookup
}

// Sandbox runs the agent inside a remote sprite holding a fresh clone of the
// repository.
type Sandbox struct {
	client sprite.Client
	opts   SandboxOptions
	env    []string

	mu      sync.Mutex
	created bool
	cleaned bool
}

// NewSandbox creates a Sandbox executor backed by client.
func NewSandbox(client sprite.Client, opts SandboxOptions) *Sandbox {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Branch == "" {
		opts.Branch = config.DefaultSandboxBranch
	}
	if opts.Name == "" {
		opts.Name = sprite.GenerateName(opts.RepoURL, opts.Branch)
	}
	if opts.Setup == nil {
		opts.Setup = DefaultSandboxSetup
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+opts.Env[k])
	}

	return &Sandbox{client: client, opts: opts, env: env}
}

// Name returns the sprite name.
func (s *Sandbox) Name() string {
	return s.opts.Name
}

// Initialize creates the sprite, clones the repository and runs setup.
func (s *Sandbox) Initialize(ctx context.Context) error {
	for _, key := range []string{config.EnvAnthropicAPIKey, config.EnvGitHubToken} {
		if s.opts.Env[key] == "" {
			return fmt.Errorf("%s is required for sandbox runs", key)
		}
	}
	if s.opts.RepoURL == "" {
		return fmt.Errorf("a repository URL is required for sandbox runs")
	}

	s.mu.Lock()
	s.created = true
	s.mu.Unlock()

	logging.Info("creating sandbox", "sprite", s.opts.Name, "checkpoint", s.opts.Checkpoint)
	if err := s.client.Create(ctx, s.opts.Name, s.opts.Checkpoint); err != nil {
		return err
	}

	token := s.opts.Env[config.EnvGitHubToken]
	cloneURL := sprite.AuthenticatedURL(s.opts.RepoURL, token)
	if err := s.run(ctx, "", token, "git", "clone", "--branch", s.opts.Branch, cloneURL, sprite.WorkspaceDir); err != nil {
		return fmt.Errorf("failed to clone %s: %w", s.opts.RepoURL, err)
	}

	if err := sprite.SetupGitConfig(ctx, s.client, s.opts.Name, s.opts.GitConfig); err != nil {
		logging.Warn("failed to copy git identity to sandbox", "error", err)
	}

	for _, script := range s.opts.Setup {
		logging.Debug("running sandbox setup", "command", script)
		if err := s.run(ctx, sprite.WorkspaceDir, token, sprite.ShellScript(script)...); err != nil {
			return fmt.Errorf("sandbox setup %q failed: %w", script, err)
		}
	}
	return nil
}

// run executes a command to completion and turns a non-zero exit into an
// error carrying its stderr with secret redacted.
func (s *Sandbox) run(ctx context.Context, dir, secret string, args ...string) error {
	_, stderr, code, err := s.client.ExecuteOutput(ctx, s.opts.Name, dir, s.env, args...)
	if err != nil {
		return err
	}
	if code != 0 {
		msg := strings.TrimSpace(string(stderr))
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, "***")
		}
		return fmt.Errorf("exit code %d: %s", code, msg)
	}
	return nil
}

// Execute runs the agent on a terminal session in the sprite's workspace.
// The terminal merges the agent's stderr into its stdout.
func (s *Sandbox) Execute(ctx context.Context, prompt string, onStdout, onStderr func(string), opts ExecuteOptions) (*ExecResult, error) {
	argv := append([]string{s.opts.Binary}, AgentArgs(prompt, opts, "")...)
	cmd, err := s.client.ExecuteTerminal(ctx, s.opts.Name, sprite.WorkspaceDir, s.env, sprite.ShellCommand(argv)...)
	if err != nil {
		return nil, fmt.Errorf("failed to start agent in sandbox: %w", err)
	}

	output, readErr := drain(cmd.Stdout, cmd.Stderr, onStdout, onStderr)
	waitErr := cmd.Wait()
	code := cmd.ExitCode()
	if waitErr != nil && code < 0 {
		return &ExecResult{ExitCode: code, Output: output}, fmt.Errorf("failed to wait for agent in sandbox: %w", waitErr)
	}
	if readErr != nil {
		return &ExecResult{ExitCode: code, Output: output}, fmt.Errorf("failed to read agent output: %w", readErr)
	}
	return &ExecResult{ExitCode: code, Output: output}, nil
}

// ReadFile reads a workspace file through the sprite filesystem. Any read
// failure is reported as absence.
func (s *Sandbox) ReadFile(ctx context.Context, p string) ([]byte, error) {
	data, err := s.client.ReadFile(ctx, s.opts.Name, path.Join(sprite.WorkspaceDir, p))
	if err != nil {
		logging.Debug("sandbox file not readable", "path", p, "error", err)
		return nil, nil
	}
	return data, nil
}

// Cleanup deletes the sprite once. Deletion failures are logged, not
// returned.
func (s *Sandbox) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned || !s.created {
		return nil
	}
	s.cleaned = true

	if err := s.client.Delete(ctx, s.opts.Name); err != nil {
		logging.Warn("failed to delete sandbox", "sprite", s.opts.Name, "error", err)
	}
	return nil
}

var _ Executor = (*Sandbox)(nil)
