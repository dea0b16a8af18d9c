// Package sprite wraps the sprites-go SDK behind a small Client interface so
// the sandbox executor can be driven against a mock in tests.
package sprite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	sprites "github.com/superfly/sprites-go"
	"golang.org/x/sync/errgroup"
)

// NamePrefix is prepended to every sprite ralph creates.
const NamePrefix = "ralph-"

// Client defines the interface for Sprite operations.
type Client interface {
	// Create creates a new Sprite with the given name.
	// If checkpoint is non-empty, restores from that checkpoint after creation.
	Create(ctx context.Context, name string, checkpoint string) error

	// Execute runs a command on the Sprite and returns pipes for streaming.
	// The caller must drain both pipes and then call Wait.
	Execute(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error)

	// ExecuteTerminal is Execute on a remote pseudo-terminal. Stderr is merged
	// into Stdout, so the Stderr pipe yields nothing.
	ExecuteTerminal(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error)

	// ExecuteOutput runs a command to completion and returns its output.
	ExecuteOutput(ctx context.Context, name string, dir string, env []string, args ...string) (stdout, stderr []byte, exitCode int, err error)

	// WriteFile writes content to a file path on the Sprite.
	WriteFile(ctx context.Context, name string, path string, content []byte) error

	// ReadFile reads content from a file path on the Sprite.
	ReadFile(ctx context.Context, name string, path string) ([]byte, error)

	// Delete deletes the Sprite.
	Delete(ctx context.Context, name string) error

	// Exists checks if a Sprite exists.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the sprites whose names start with prefix.
	List(ctx context.Context, prefix string) ([]Info, error)
}

// Info describes a listed sprite.
type Info struct {
	Name      string
	CreatedAt time.Time
}

// Cmd wraps a command execution with streaming capabilities.
type Cmd struct {
	cmd      *sprites.Cmd
	Stdout   io.ReadCloser
	Stderr   io.ReadCloser
	waitErr  error
	mockExit int
}

// Wait waits for the command to complete.
func (c *Cmd) Wait() error {
	if c.cmd == nil {
		return nil
	}
	c.waitErr = c.cmd.Wait()
	return c.waitErr
}

// ExitCode returns the exit code of the command after Wait() returns.
// Returns -1 if the exit code is unknown.
func (c *Cmd) ExitCode() int {
	if c.cmd == nil {
		return c.mockExit
	}
	if c.waitErr == nil {
		return 0
	}
	if exitErr, ok := c.waitErr.(*sprites.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// NewMockCmd returns a Cmd that yields the given output and exit code
// without a remote process behind it.
func NewMockCmd(stdout, stderr []byte, exitCode int) *Cmd {
	return &Cmd{
		Stdout:   io.NopCloser(bytes.NewReader(stdout)),
		Stderr:   io.NopCloser(bytes.NewReader(stderr)),
		mockExit: exitCode,
	}
}

// SDKClient implements Client using the sprites-go SDK.
type SDKClient struct {
	client *sprites.Client
}

// NewSDKClient creates a new SDKClient with the given API token.
func NewSDKClient(token string) *SDKClient {
	return &SDKClient{
		client: sprites.New(token),
	}
}

// Create creates a new Sprite with the given name.
func (c *SDKClient) Create(ctx context.Context, name string, checkpoint string) error {
	if _, err := c.client.CreateSprite(ctx, name, nil); err != nil {
		return fmt.Errorf("failed to create sprite %s: %w", name, err)
	}

	if checkpoint == "" {
		return nil
	}

	stream, err := c.client.Sprite(name).RestoreCheckpoint(ctx, checkpoint)
	if err != nil {
		return fmt.Errorf("failed to restore checkpoint %s: %w", checkpoint, err)
	}
	defer stream.Close()

	if err := stream.ProcessAll(func(msg *sprites.StreamMessage) error {
		return nil
	}); err != nil {
		return fmt.Errorf("failed to restore checkpoint %s: %w", checkpoint, err)
	}
	return nil
}

// Terminal size requested for ExecuteTerminal sessions. Wide enough that
// agent JSON lines are not wrapped by the remote side.
const (
	TerminalRows = 50
	TerminalCols = 4096
)

// Execute runs a command on the Sprite and returns pipes for streaming.
func (c *SDKClient) Execute(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error) {
	return c.start(ctx, name, dir, env, false, args)
}

// ExecuteTerminal runs a command on a pseudo-terminal on the Sprite.
func (c *SDKClient) ExecuteTerminal(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error) {
	return c.start(ctx, name, dir, env, true, args)
}

func (c *SDKClient) start(ctx context.Context, name string, dir string, env []string, tty bool, args []string) (*Cmd, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command specified")
	}

	cmd := c.client.Sprite(name).CommandContext(ctx, args[0], args[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	if tty {
		cmd.SetTTY(true)
		if err := cmd.SetTTYSize(TerminalRows, TerminalCols); err != nil {
			return nil, fmt.Errorf("failed to size terminal: %w", err)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	return &Cmd{
		cmd:    cmd,
		Stdout: stdout,
		Stderr: stderr,
	}, nil
}

// ExecuteOutput runs a command on the Sprite and collects its output.
func (c *SDKClient) ExecuteOutput(ctx context.Context, name string, dir string, env []string, args ...string) ([]byte, []byte, int, error) {
	cmd, err := c.Execute(ctx, name, dir, env, args...)
	if err != nil {
		return nil, nil, -1, err
	}
	return Collect(cmd)
}

// Collect drains both pipes of cmd concurrently and waits for it to exit.
// A non-zero exit is reported through the exit code, not the error.
func Collect(cmd *Cmd) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&stdout, cmd.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&stderr, cmd.Stderr)
		return err
	})
	readErr := g.Wait()

	waitErr := cmd.Wait()
	code := cmd.ExitCode()
	if waitErr != nil && code < 0 {
		return stdout.Bytes(), stderr.Bytes(), code, fmt.Errorf("failed to wait for command: %w", waitErr)
	}
	if readErr != nil {
		return stdout.Bytes(), stderr.Bytes(), code, fmt.Errorf("failed to read command output: %w", readErr)
	}
	return stdout.Bytes(), stderr.Bytes(), code, nil
}

// WriteFile writes content to a file path on the Sprite.
func (c *SDKClient) WriteFile(ctx context.Context, name string, path string, content []byte) error {
	fs := c.client.Sprite(name).Filesystem()
	if err := fs.WriteFileContext(ctx, path, content, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// ReadFile reads content from a file path on the Sprite.
func (c *SDKClient) ReadFile(ctx context.Context, name string, path string) ([]byte, error) {
	// The SDK filesystem has no context-aware read; the HTTP client still
	// honours its own timeouts.
	data, err := c.client.Sprite(name).Filesystem().ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}

// Delete deletes the Sprite.
func (c *SDKClient) Delete(ctx context.Context, name string) error {
	if err := c.client.DeleteSprite(ctx, name); err != nil {
		return fmt.Errorf("failed to delete sprite %s: %w", name, err)
	}
	return nil
}

// Exists checks if a Sprite exists.
func (c *SDKClient) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.client.GetSprite(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check sprite existence: %w", err)
	}
	return true, nil
}

// List returns every sprite whose name starts with prefix.
func (c *SDKClient) List(ctx context.Context, prefix string) ([]Info, error) {
	all, err := c.client.ListAllSprites(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sprites: %w", err)
	}
	infos := make([]Info, 0, len(all))
	for _, s := range all {
		infos = append(infos, Info{Name: s.Name(), CreatedAt: s.CreatedAt})
	}
	return infos, nil
}

// isNotFound matches the several shapes of "missing sprite" errors the SDK
// returns.
func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "404") ||
		strings.Contains(msg, "failed to retrieve sprite")
}

// GenerateName creates a deterministic sprite name from repo and branch.
// Format: ralph-<8 hex chars>
func GenerateName(repo, branch string) string {
	hash := sha256.Sum256([]byte(repo + ":" + branch))
	return NamePrefix + hex.EncodeToString(hash[:])[:8]
}

var (
	_ Client = (*SDKClient)(nil)
	_ Client = (*MockSpriteClient)(nil)
)
