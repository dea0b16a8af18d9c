package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/ralph/internal/state"
)

func TestBacklog_EmbeddedDefault(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir()).Backlog()
	require.NoError(t, err)

	first, rest, _ := strings.Cut(p, "\n")
	assert.Equal(t, "@.ralph/backlog.json @.ralph/progress.txt", first)
	assert.Contains(t, rest, "<promise>STUCK</promise>")
}

func TestFeature_SubstitutesName(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir()).Feature("auth")
	require.NoError(t, err)

	first, rest, _ := strings.Cut(p, "\n")
	assert.Equal(t, "@.ralph/features/auth/plan.md @.ralph/features/auth/tasks.json @.ralph/features/auth/progress.txt", first)
	assert.Contains(t, rest, `"auth" feature`)
	assert.NotContains(t, rest, featurePlaceholder)
}

func TestOneshot(t *testing.T) {
	t.Parallel()

	p, err := New(t.TempDir()).Oneshot("search")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, "@.ralph/features/search/plan.md"))
	assert.Contains(t, p, "single session")
}

func TestProjectPromptOverridesDefault(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	dir := filepath.Join(base, Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "backlog.md"), []byte("custom instructions"), 0o644))

	p, err := New(base).Backlog()
	require.NoError(t, err)
	assert.Equal(t, "@.ralph/backlog.json @.ralph/progress.txt\ncustom instructions", p)
}

func TestHook(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	set := New(base)

	_, ok, err := set.Hook(HookOnIteration, "")
	require.NoError(t, err)
	assert.False(t, ok, "hooks are disabled until their prompt exists")

	hooks := filepath.Join(base, Dir, "hooks")
	require.NoError(t, os.MkdirAll(hooks, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(hooks, "on-iteration.md"), []byte("review {{feature}}"), 0o644))

	p, ok, err := set.Hook(HookOnIteration, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "review {{feature}}", p)

	p, ok, err = set.Hook(HookOnIteration, "billing")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "@.ralph/features/billing/plan.md @.ralph/features/billing/tasks.json @.ralph/features/billing/progress.txt\nreview billing", p)
}

func TestWriteDefaults(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	written, err := WriteDefaults(base, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(Dir, "backlog.md"),
		filepath.Join(Dir, "feature.md"),
		filepath.Join(Dir, "oneshot.md"),
		filepath.Join(Dir, "refresh.md"),
		filepath.Join(Dir, "report.md"),
		filepath.Join(Dir, "review.md"),
		filepath.Join(Dir, "hooks", "on-complete.md"),
		filepath.Join(Dir, "hooks", "on-iteration.md"),
	}, written)

	custom := filepath.Join(base, Dir, "backlog.md")
	require.NoError(t, os.WriteFile(custom, []byte("mine"), 0o644))

	written, err = WriteDefaults(base, false)
	require.NoError(t, err)
	assert.Empty(t, written)
	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))

	written, err = WriteDefaults(base, true)
	require.NoError(t, err)
	assert.Len(t, written, 8)
	data, err = os.ReadFile(custom)
	require.NoError(t, err)
	assert.NotEqual(t, "mine", string(data))

	_, ok, err := New(base).Hook(HookOnComplete, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	set := New(t.TempDir())

	p, err := set.Refresh("")
	require.NoError(t, err)
	first, rest, _ := strings.Cut(p, "\n\n")
	assert.Equal(t, "@.ralph/backlog.json", first)
	assert.Contains(t, rest, `"passes": true`)

	p, err = set.Refresh("auth")
	require.NoError(t, err)
	first, _, _ = strings.Cut(p, "\n\n")
	assert.Equal(t, "@.ralph/features/auth/plan.md @.ralph/features/auth/tasks.json", first)
}

func TestNamed(t *testing.T) {
	t.Parallel()

	set := New(t.TempDir())
	tasks := &state.TaskFile{Tasks: []state.Task{{Title: "a", Passes: true}, {Title: "b"}, {Title: "c"}}}

	p, err := set.Named("report", "search", Review{Tasks: tasks, GitLog: "abc123 add index\n"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p, "@.ralph/features/search/plan.md @.ralph/features/search/tasks.json @.ralph/features/search/progress.txt\n\n"))
	assert.Contains(t, p, `You are reviewing the progress of the "search" feature.`)
	assert.Contains(t, p, "## Task Summary\n- Total tasks: 3\n- Completed: 1\n- Remaining: 2\n")
	assert.Contains(t, p, "## Recent Git Activity\n```\nabc123 add index\n```\n")
	assert.NotContains(t, p, "## Changes in Branch")
	assert.Contains(t, p, "critical assessment")

	p, err = set.Named("review", "search", Review{})
	require.NoError(t, err)
	assert.NotContains(t, p, "## Task Summary")
	assert.Contains(t, p, "actual diff")
}

func TestNamed_ProjectPrompt(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, Dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, Dir, "audit.md"), []byte("audit {{feature}}"), 0o644))
	set := New(base)

	p, err := set.Named("audit", "search", Review{})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(p, "\naudit search"))

	_, err = set.Named("missing", "search", Review{})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../secrets", "hooks/on-iteration", ".hidden"} {
		_, err := set.Named(name, "search", Review{})
		assert.Error(t, err, name)
		assert.NotErrorIs(t, err, ErrNotFound, name)
	}
}
