package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/state"
)

func resetSessionFlags(t *testing.T) {
	t.Helper()
	sessionFlags, promptFirst = runFlags{}, false
	t.Cleanup(func() { sessionFlags, promptFirst = runFlags{}, false })
}

func writeProjectFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestPromptCommand(t *testing.T) {
	dir := setupProject(t)
	resetSessionFlags(t)
	stubGit(t, "abc123 add index\n", nil)
	writeTasks(t, dir, state.FeatureTasksPath("search"), true, false)
	writeProjectFile(t, dir, state.FeaturePlanPath("search"), "# Search\n\nBranch: feat/search\n")
	writeProjectFile(t, dir, filepath.Join(state.Dir, "config.yaml"), "models:\n  review: opus\n")
	fake := stubExecutor(t, executor.FakeRun{Stdout: []string{assistantLine(t, "looks fine")}})
	out := capture(promptCmd)

	require.NoError(t, runPrompt(promptCmd, []string{"review", "search"}))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "opus", calls[0].Opts.Model)
	assert.Contains(t, calls[0].Prompt, "@.ralph/features/search/plan.md @.ralph/features/search/tasks.json @.ralph/features/search/progress.txt")
	assert.Contains(t, calls[0].Prompt, "- Completed: 1\n- Remaining: 1\n")
	assert.Contains(t, calls[0].Prompt, "## Recent Git Activity\n```\nabc123 add index\n```")
	assert.Contains(t, calls[0].Prompt, "## Changes in Branch")
	assert.Contains(t, out.String(), "Running review for: search")
	assert.Contains(t, out.String(), "looks fine")
	assert.Equal(t, state.StatusInitialized, loadRunState(t, dir).Status)
}

func TestPromptCommandFirst(t *testing.T) {
	dir := setupProject(t)
	resetSessionFlags(t)
	stubGit(t, "", errNotRepo)
	writeTasks(t, dir, state.FeatureTasksPath("search"), false)
	fake := stubExecutor(t, executor.FakeRun{})
	promptFirst = true
	sessionFlags.model = "haiku"
	out := capture(promptCmd)

	require.NoError(t, runPrompt(promptCmd, []string{"report"}))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "haiku", calls[0].Opts.Model)
	assert.NotContains(t, calls[0].Prompt, "## Recent Git Activity")
	assert.Contains(t, out.String(), "Using most recent feature: search")
}

func TestPromptCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no feature", args: []string{"review"}, wantErr: "usage: ralph prompt review <feature> (available features: search)"},
		{name: "unknown feature", args: []string{"review", "billing"}, wantErr: "feature 'billing' not found"},
		{name: "unknown prompt", args: []string{"audit", "search"}, wantErr: "prompt not found"},
		{name: "invalid prompt", args: []string{"../backlog", "search"}, wantErr: "invalid prompt name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t)
			resetSessionFlags(t)
			stubGit(t, "", errNotRepo)
			writeTasks(t, dir, state.FeatureTasksPath("search"), false)
			fake := stubExecutor(t)
			capture(promptCmd)

			err := runPrompt(promptCmd, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, fake.Calls())
		})
	}
}

func TestRefreshCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantPrefix string
		wantOut    string
	}{
		{name: "backlog", args: []string{"backlog"}, wantPrefix: "@.ralph/backlog.json\n\n", wantOut: "Refreshing backlog: backlog"},
		{name: "named feature", args: []string{"feature", "auth"}, wantPrefix: "@.ralph/features/auth/plan.md @.ralph/features/auth/tasks.json\n\n", wantOut: "Refreshing feature: auth"},
		{name: "most recent feature", args: []string{"feature"}, wantPrefix: "@.ralph/features/search/plan.md", wantOut: "Using most recent feature: search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t)
			resetSessionFlags(t)
			writeTasks(t, dir, state.BacklogPath, false)
			writeTasks(t, dir, state.FeatureTasksPath("search"), false)
			writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
			older := time.Now().Add(-time.Hour)
			require.NoError(t, os.Chtimes(filepath.Join(dir, state.FeatureDir("auth")), older, older))
			writeProjectFile(t, dir, filepath.Join(state.Dir, "config.yaml"), "models:\n  refresh: sonnet\n")
			fake := stubExecutor(t, executor.FakeRun{})
			out := capture(refreshCmd)

			require.NoError(t, runRefresh(refreshCmd, tt.args))

			calls := fake.Calls()
			require.Len(t, calls, 1)
			assert.True(t, strings.HasPrefix(calls[0].Prompt, tt.wantPrefix), calls[0].Prompt)
			assert.Equal(t, "sonnet", calls[0].Opts.Model)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestRefreshCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown target", args: []string{"queue"}, wantErr: "usage: ralph refresh <backlog|feature>"},
		{name: "backlog takes no name", args: []string{"backlog", "auth"}, wantErr: "usage: ralph refresh backlog"},
		{name: "unknown feature", args: []string{"feature", "billing"}, wantErr: "feature 'billing' not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupProject(t)
			resetSessionFlags(t)
			fake := stubExecutor(t)
			capture(refreshCmd)

			err := runRefresh(refreshCmd, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, fake.Calls())
		})
	}
}

func TestRefreshCommandNoFeatures(t *testing.T) {
	setupProject(t)
	resetSessionFlags(t)
	capture(refreshCmd)

	err := runRefresh(refreshCmd, []string{"feature"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no features found")
}

func TestReportCommand(t *testing.T) {
	dir := setupProject(t)
	resetSessionFlags(t)
	stubGit(t, "", errNotRepo)
	writeTasks(t, dir, state.FeatureTasksPath("search"), false)
	fake := stubExecutor(t, executor.FakeRun{ExitCode: 4})
	out := capture(reportCmd)

	err := runReport(reportCmd, []string{"search"})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 4, exitErr.Code)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, `You are reviewing the progress of the "search" feature.`)
	assert.Contains(t, calls[0].Prompt, "critical assessment")
	assert.Contains(t, out.String(), "Starting review of: search")

	err = runReport(reportCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage: ralph report <name> (available features: search)")
}
