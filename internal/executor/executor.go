// Package executor runs one agent invocation against a backend and exposes
// the files the agent produced.
//
// Two backends exist: Local runs the agent binary in the working directory
// alongside optional dev services, and Sandbox runs it inside a remote
// sprite. The runner drives either through the Executor interface.
package executor

import (
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultBinary is the agent executable.
const DefaultBinary = "claude"

// Executor runs agent invocations against one backend.
type Executor interface {
	// Initialize prepares the backend. It is called once before the first
	// Execute.
	Initialize(ctx context.Context) error

	// Execute runs the agent with prompt. onStdout and onStderr receive
	// output chunks as they arrive. A returned error means the agent could
	// not be run; a non-zero exit is reported in ExecResult.ExitCode.
	Execute(ctx context.Context, prompt string, onStdout, onStderr func(string), opts ExecuteOptions) (*ExecResult, error)

	// ReadFile reads path relative to the agent's working directory. A
	// missing file returns nil, nil.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Cleanup releases backend resources. It is safe to call repeatedly.
	Cleanup(ctx context.Context) error
}

// ExecuteOptions are per-invocation settings.
type ExecuteOptions struct {
	Model string
}

// ExecResult is the outcome of an invocation.
type ExecResult struct {
	ExitCode int
	Output   string
}

// AgentArgs builds the agent command-line arguments.
func AgentArgs(prompt string, opts ExecuteOptions, mcpConfig string) []string {
	args := []string{
		"--dangerously-skip-permissions",
		"-p",
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if mcpConfig != "" {
		args = append(args, "--mcp-config", mcpConfig)
	}
	return append(args, prompt)
}

const chunkSize = 32 * 1024

// drain reads stdout and stderr concurrently, handing each chunk to its
// callback, and returns everything read from stdout.
func drain(stdout, stderr io.Reader, onStdout, onStderr func(string)) (string, error) {
	var out strings.Builder
	var g errgroup.Group
	g.Go(func() error {
		return pump(stdout, func(s string) {
			out.WriteString(s)
			if onStdout != nil {
				onStdout(s)
			}
		})
	})
	g.Go(func() error {
		return pump(stderr, onStderr)
	})
	err := g.Wait()
	return out.String(), err
}

func pump(r io.Reader, fn func(string)) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && fn != nil {
			fn(string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
