package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/state"
)

// useProject points the commands at a fresh temp directory for the test.
func useProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	projectDir = dir
	t.Cleanup(func() { projectDir = "" })
	t.Setenv("NTFY_URL", "")
	return dir
}

// setupProject runs setup in a fresh project.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := useProject(t)
	setupMaxIterations, setupForce = 0, false
	capture(setupCmd)
	require.NoError(t, runSetup(setupCmd, nil))
	return dir
}

func capture(cmd *cobra.Command) *bytes.Buffer {
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	return &buf
}

// stubExecutor swaps the executor factory for one returning a scripted fake.
func stubExecutor(t *testing.T, runs ...executor.FakeRun) *executor.Fake {
	t.Helper()
	fake := executor.NewFake(runs...)
	prev := newExecutorFactory
	newExecutorFactory = func(ctx context.Context, p *project, f runFlags) (runner.ExecutorFactory, error) {
		return func(ctx context.Context, unit runner.Unit) (executor.Executor, error) {
			return fake, nil
		}, nil
	}
	t.Cleanup(func() { newExecutorFactory = prev })
	return fake
}

// stubGit replaces git with a function returning fixed output.
func stubGit(t *testing.T, out string, err error) {
	t.Helper()
	prev := gitOutput
	gitOutput = func(ctx context.Context, dir string, args ...string) (string, error) {
		return out, err
	}
	t.Cleanup(func() { gitOutput = prev })
}

var errNotRepo = errors.New("fatal: not a git repository")

func writeTasks(t *testing.T, dir, rel string, passes ...bool) {
	t.Helper()
	require.NoError(t, state.NewStore(dir).SaveTaskFile(rel, taskFile(passes...)))
}

func taskFile(passes ...bool) *state.TaskFile {
	tf := &state.TaskFile{Tasks: []state.Task{}}
	for i, p := range passes {
		tf.Tasks = append(tf.Tasks, state.Task{Title: "task " + string(rune('a'+i)), Passes: p})
	}
	return tf
}

func tasksJSON(t *testing.T, passes ...bool) string {
	t.Helper()
	data, err := json.Marshal(taskFile(passes...))
	require.NoError(t, err)
	return string(data)
}

// assistantLine renders text as one stream-json assistant record.
func assistantLine(t *testing.T, text string) string {
	t.Helper()
	rec := map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data) + "\n"
}

// holdLock writes a lock owned by the test process, which is always alive.
func holdLock(t *testing.T, dir, unit string) {
	t.Helper()
	data, err := json.Marshal(state.Lock{Owner: "other", PID: os.Getpid(), Unit: unit, AcquiredAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, state.LockPath), data, 0o644))
}

func loadRunState(t *testing.T, dir string) *state.RunState {
	t.Helper()
	rs, err := state.NewStore(dir).LoadRunState()
	require.NoError(t, err)
	require.NotNil(t, rs)
	return rs
}
