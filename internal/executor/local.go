package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/services"
	"github.com/thruflo/ralph/internal/state"
)

// MCPConfigPath is where the merged MCP manifest is written, relative to the
// working directory.
var MCPConfigPath = filepath.Join(state.Dir, "mcp-config.json")

// waitDelay bounds how long Execute waits for output pipes after the agent
// exits or is killed.
const waitDelay = 5 * time.Second

// CommandFactory builds the agent command. It matches exec.CommandContext.
type CommandFactory func(ctx context.Context, name string, args ...string) *exec.Cmd

// LocalOptions configures a Local executor.
type LocalOptions struct {
	WorkDir    string
	Binary     string
	Services   []services.Service
	MCPServers map[string]config.MCPServer
	LogsDir    string
	UsePTY     bool
	// Env is appended to the process environment for every invocation.
	Env            []string
	CommandFactory CommandFactory
}

// Local runs the agent as a child process on this machine.
type Local struct {
	opts    LocalOptions
	manager *services.Manager

	initOnce  sync.Once
	initErr   error
	mcpConfig string

	mu      sync.Mutex
	cleaned bool
}

// NewLocal creates a Local executor.
func NewLocal(opts LocalOptions) *Local {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.CommandFactory == nil {
		opts.CommandFactory = exec.CommandContext
	}
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	return &Local{
		opts: opts,
		manager: services.NewManager(opts.Services, services.Options{
			Dir:     opts.WorkDir,
			LogsDir: opts.LogsDir,
			UsePTY:  opts.UsePTY,
		}),
	}
}

// Initialize starts the dev services and writes the merged MCP manifest.
// Only the first call does any work.
func (l *Local) Initialize(ctx context.Context) error {
	l.initOnce.Do(func() {
		l.initErr = l.initialize(ctx)
	})
	return l.initErr
}

func (l *Local) initialize(ctx context.Context) error {
	servers, err := services.MergeMCP(l.opts.MCPServers, filepath.Join(l.opts.WorkDir, services.ProjectMCPFile))
	if err != nil {
		return err
	}
	if len(servers) > 0 {
		path := filepath.Join(l.opts.WorkDir, MCPConfigPath)
		if err := services.WriteMCPConfig(path, servers); err != nil {
			return err
		}
		l.mcpConfig = path
		logging.Debug("wrote MCP config", "path", path, "servers", len(servers))
	}

	if err := l.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	return nil
}

// Execute runs the agent once in the working directory.
func (l *Local) Execute(ctx context.Context, prompt string, onStdout, onStderr func(string), opts ExecuteOptions) (*ExecResult, error) {
	args := AgentArgs(prompt, opts, l.mcpConfig)
	cmd := l.opts.CommandFactory(ctx, l.opts.Binary, args...)
	cmd.Dir = l.opts.WorkDir
	cmd.WaitDelay = waitDelay
	if len(l.opts.Env) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ()
		}
		cmd.Env = append(cmd.Env, l.opts.Env...)
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	logging.Debug("executing agent", "binary", l.opts.Binary, "dir", l.opts.WorkDir, "model", opts.Model)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		outW.Close()
		errW.Close()
		waited <- err
	}()

	output, readErr := drain(outR, errR, onStdout, onStderr)
	waitErr := <-waited

	if cmd.ProcessState == nil {
		return &ExecResult{ExitCode: -1, Output: output}, fmt.Errorf("failed to wait for agent: %w", waitErr)
	}
	if waitErr != nil && !isExitError(waitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		logging.Debug("agent wait returned error", "error", waitErr)
	}
	if readErr != nil {
		return &ExecResult{ExitCode: cmd.ProcessState.ExitCode(), Output: output}, fmt.Errorf("failed to read agent output: %w", readErr)
	}
	return &ExecResult{ExitCode: cmd.ProcessState.ExitCode(), Output: output}, nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ReadFile reads path relative to the working directory.
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.opts.WorkDir, path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Cleanup stops the dev services.
func (l *Local) Cleanup(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cleaned {
		return nil
	}
	l.cleaned = true
	return l.manager.Stop()
}

var _ Executor = (*Local)(nil)
