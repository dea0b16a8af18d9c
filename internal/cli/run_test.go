package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/state"
)

func resetRunFlags(t *testing.T) {
	t.Helper()
	backlogFlags, featureFlags, featureFirst = runFlags{}, runFlags{}, false
	t.Cleanup(func() {
		backlogFlags, featureFlags, featureFirst = runFlags{}, runFlags{}, false
	})
}

func TestBacklogCommand(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	writeTasks(t, dir, state.BacklogPath, false)
	fake := stubExecutor(t,
		executor.FakeRun{Stdout: []string{"working\n"}},
		executor.FakeRun{Files: map[string]string{state.BacklogPath: tasksJSON(t, true)}},
	)
	backlogFlags.model = "opus"

	out := capture(backlogCmd)
	require.NoError(t, runBacklog(backlogCmd, nil))

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Prompt, "@.ralph/backlog.json @.ralph/progress.txt")
	assert.Equal(t, "opus", calls[0].Opts.Model)

	rs := loadRunState(t, dir)
	assert.Equal(t, state.StatusCompleted, rs.Status)
	assert.Equal(t, 2, rs.Iteration)
	assert.Contains(t, out.String(), "✅ All tasks complete!")

	lock, err := state.NewStore(dir).LoadLock()
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestBacklogCommandExitCodes(t *testing.T) {
	tests := []struct {
		name string
		run  executor.FakeRun
		code int
	}{
		{name: "stuck", run: executor.FakeRun{Stdout: []string{assistantLine(t, "<promise>STUCK</promise>")}}, code: 2},
		{name: "bare marker is not assistant text", run: executor.FakeRun{Stdout: []string{"<promise>STUCK</promise>\n"}}, code: 1},
		{name: "agent failure", run: executor.FakeRun{ExitCode: 3}, code: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupProject(t)
			resetRunFlags(t)
			stubGit(t, "", nil)
			stubExecutor(t, tt.run)
			backlogFlags.maxIterations = 1
			capture(backlogCmd)

			err := runBacklog(backlogCmd, nil)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tt.code, exitErr.Code)
		})
	}
}

func TestBacklogCommandMaxIterations(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	stubExecutor(t, executor.FakeRun{}, executor.FakeRun{})
	backlogFlags.maxIterations = 2
	out := capture(backlogCmd)

	err := runBacklog(backlogCmd, nil)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	assert.Contains(t, out.String(), "Max iterations (2) reached")
	assert.Equal(t, state.StatusMaxIterationsReached, loadRunState(t, dir).Status)
}

func TestBacklogCommandOnce(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	fake := stubExecutor(t, executor.FakeRun{})
	backlogFlags.once = true
	out := capture(backlogCmd)

	require.NoError(t, runBacklog(backlogCmd, nil))
	assert.Len(t, fake.Calls(), 1)
	assert.Contains(t, out.String(), "(single iteration)")
	assert.Equal(t, state.StatusInitialized, loadRunState(t, dir).Status)
}

func TestBacklogCommandRequiresCleanTree(t *testing.T) {
	setupProject(t)
	resetRunFlags(t)
	stubGit(t, " M main.go\n", nil)
	fake := stubExecutor(t, executor.FakeRun{})
	capture(backlogCmd)

	err := runBacklog(backlogCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uncommitted changes")
	assert.Empty(t, fake.Calls())

	backlogFlags.force = true
	fake.Push(executor.FakeRun{Files: map[string]string{state.BacklogPath: tasksJSON(t, true)}})
	assert.NoError(t, runBacklog(backlogCmd, nil))
}

func TestBacklogCommandOutsideGit(t *testing.T) {
	setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", errNotRepo)
	stubExecutor(t, executor.FakeRun{Files: map[string]string{state.BacklogPath: tasksJSON(t, true)}})
	capture(backlogCmd)

	assert.NoError(t, runBacklog(backlogCmd, nil))
}

func TestBacklogCommandNeedsSetup(t *testing.T) {
	useProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	capture(backlogCmd)

	err := runBacklog(backlogCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ralph setup")
}

func TestBacklogCommandLocked(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	holdLock(t, dir, "auth")
	fake := stubExecutor(t, executor.FakeRun{})
	capture(backlogCmd)

	err := runBacklog(backlogCmd, nil)
	assert.ErrorIs(t, err, state.ErrLocked)
	assert.Empty(t, fake.Calls())
}

func TestFeatureCommand(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
	fake := stubExecutor(t, executor.FakeRun{Files: map[string]string{state.FeatureTasksPath("auth"): tasksJSON(t, true)}})
	out := capture(featureCmd)

	require.NoError(t, runFeature(featureCmd, []string{"auth"}))

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "@.ralph/features/auth/plan.md")
	assert.Contains(t, calls[0].Prompt, `"auth" feature`)
	assert.Contains(t, out.String(), "Feature: auth")

	rs := loadRunState(t, dir)
	assert.Equal(t, state.StatusCompleted, rs.Status)
	assert.Equal(t, "auth", rs.Feature)
	assert.FileExists(t, state.NewStore(dir).Path(state.FeatureProgressPath("auth")))
}

func TestFeatureCommandOnceUsesOneshotPrompt(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
	fake := stubExecutor(t, executor.FakeRun{})
	featureFlags.once = true
	capture(featureCmd)

	require.NoError(t, runFeature(featureCmd, []string{"auth"}))
	require.Len(t, fake.Calls(), 1)
	assert.Contains(t, fake.Calls()[0].Prompt, "single session")
}

func TestFeatureCommandQueuesWhileRunning(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
	writeTasks(t, dir, state.FeatureTasksPath("search"), false)
	holdLock(t, dir, "backlog")
	fake := stubExecutor(t)
	out := capture(featureCmd)

	require.NoError(t, runFeature(featureCmd, []string{"auth"}))
	require.NoError(t, runFeature(featureCmd, []string{"search"}))

	assert.Contains(t, out.String(), "Queued 'auth' (position 1)")
	assert.Contains(t, out.String(), "Queued 'search' (position 2)")
	assert.Empty(t, fake.Calls())

	q, err := state.NewStore(dir).LoadQueue()
	require.NoError(t, err)
	assert.Equal(t, []string{"auth", "search"}, q.Items)
}

func TestFeatureCommandFirst(t *testing.T) {
	dir := setupProject(t)
	resetRunFlags(t)
	stubGit(t, "", nil)
	writeTasks(t, dir, state.FeatureTasksPath("only"), false)
	fake := stubExecutor(t, executor.FakeRun{Files: map[string]string{state.FeatureTasksPath("only"): tasksJSON(t, true)}})
	featureFirst = true
	out := capture(featureCmd)

	require.NoError(t, runFeature(featureCmd, nil))
	assert.Contains(t, out.String(), "Using most recent feature: only")
	assert.Len(t, fake.Calls(), 1)
}

func TestFeatureCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing name", wantErr: "available features: auth"},
		{name: "unknown feature", args: []string{"billing"}, wantErr: "feature 'billing' not found (available features: auth)"},
		{name: "invalid name", args: []string{"../etc"}, wantErr: "invalid feature name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t)
			resetRunFlags(t)
			stubGit(t, "", nil)
			writeTasks(t, dir, state.FeatureTasksPath("auth"), false)
			capture(featureCmd)

			err := runFeature(featureCmd, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError(runner.Result{Reason: runner.ReasonCompleted}))

	err := resultError(runner.Result{Reason: runner.ReasonStuck, ExitCode: 2})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 2, exitErr.Code)
	assert.Equal(t, "exit status 2", err.Error())
}

func TestExecutorFactorySandboxRequiresToken(t *testing.T) {
	dir := setupProject(t)
	t.Setenv("SPRITE_TOKEN", "")
	p, err := loadProject()
	require.NoError(t, err)
	require.Equal(t, dir, p.dir)

	_, err = executorFactory(context.Background(), p, runFlags{sandbox: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPRITE_TOKEN")
}

func TestExecutorFactorySandboxRepoFromGit(t *testing.T) {
	setupProject(t)
	t.Setenv("SPRITE_TOKEN", "secret")
	var gitArgs []string
	prev := gitOutput
	gitOutput = func(ctx context.Context, dir string, args ...string) (string, error) {
		gitArgs = args
		return "https://github.com/acme/app.git\n", nil
	}
	t.Cleanup(func() { gitOutput = prev })

	p, err := loadProject()
	require.NoError(t, err)
	factory, err := executorFactory(context.Background(), p, runFlags{sandbox: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote", "get-url", "origin"}, gitArgs)

	exec, err := factory(context.Background(), runner.Unit{})
	require.NoError(t, err)
	assert.IsType(t, &executor.Sandbox{}, exec)
}

func TestExecutorFactoryLocal(t *testing.T) {
	setupProject(t)
	p, err := loadProject()
	require.NoError(t, err)

	factory, err := executorFactory(context.Background(), p, runFlags{})
	require.NoError(t, err)
	exec, err := factory(context.Background(), runner.Unit{})
	require.NoError(t, err)
	assert.IsType(t, &executor.Local{}, exec)
}
