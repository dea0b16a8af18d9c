package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputSummary(t *testing.T) {
	t.Parallel()

	longCommand := strings.Repeat("x", 70)

	tests := []struct {
		name  string
		tool  string
		input map[string]interface{}
		want  string
	}{
		{"read", "Read", map[string]interface{}{"file_path": "/src/index.ts"}, "/src/index.ts"},
		{"write", "Write", map[string]interface{}{"file_path": "a.go", "content": "x"}, "a.go"},
		{"edit", "Edit", map[string]interface{}{"file_path": "b.go"}, "b.go"},
		{"notebook", "NotebookEdit", map[string]interface{}{"notebook_path": "n.ipynb"}, "n.ipynb"},
		{"bash description wins", "Bash", map[string]interface{}{"command": "ls", "description": "List files"}, "List files"},
		{"bash command", "Bash", map[string]interface{}{"command": "go test ./..."}, "go test ./..."},
		{"bash long command", "Bash", map[string]interface{}{"command": longCommand}, strings.Repeat("x", 60) + "..."},
		{"grep with path", "Grep", map[string]interface{}{"pattern": "TODO", "path": "src"}, "/TODO/ in src"},
		{"grep without path", "Grep", map[string]interface{}{"pattern": "TODO"}, "/TODO/"},
		{"glob", "Glob", map[string]interface{}{"pattern": "**/*.ts"}, "**/*.ts"},
		{"task", "Task", map[string]interface{}{"description": "explore repo"}, "explore repo"},
		{"web fetch", "WebFetch", map[string]interface{}{"url": "https://go.dev"}, "https://go.dev"},
		{"web search", "WebSearch", map[string]interface{}{"query": "errgroup"}, "errgroup"},
		{"todo write", "TodoWrite", map[string]interface{}{"todos": []interface{}{1, 2, 3}}, "3 todos"},
		{"unknown tool", "mcp__browser__click", map[string]interface{}{"selector": "#go"}, ""},
		{"nil input", "Read", nil, ""},
		{"wrong field type", "Read", map[string]interface{}{"file_path": 12}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, InputSummary(tt.tool, tt.input))
		})
	}
}

func TestResultSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tool    string
		content string
		isError bool
		want    string
	}{
		{"read lines", "Read", "1\n2\n3\n4\n", false, "4 lines"},
		{"read one line", "Read", "only", false, "1 line"},
		{"read empty", "Read", "  \n", false, "empty"},
		{"grep found header", "Grep", "Found 3 files\na\nb\nc", false, "3 files"},
		{"grep single", "Grep", "Found 1 file\na", false, "1 file"},
		{"grep none", "Grep", "No files found", false, "no matches"},
		{"glob listing", "Glob", "a.go\nb.go\n\nc.go\n", false, "3 files"},
		{"glob single", "Glob", "a.go", false, "1 file"},
		{"glob empty", "Glob", "", false, "no matches"},
		{"bash multi", "Bash", "PASS\nok  pkg\nok  other\n", false, "PASS (+2 lines)"},
		{"bash single", "Bash", "done\n", false, "done"},
		{"bash empty", "Bash", "", false, "(no output)"},
		{"edit", "Edit", "The file has been updated", false, "✓ done"},
		{"write", "Write", "File created", false, "✓ done"},
		{"task", "Task", "long report", false, "completed"},
		{"todo", "TodoWrite", "ok", false, "updated"},
		{"other", "WebFetch", "<html>", false, "done"},
		{"error", "Bash", "\nexit status 1\nmore", true, "error: exit status 1"},
		{"error empty", "Read", "", true, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ResultSummary(tt.tool, tt.content, tt.isError))
		})
	}
}

func TestResultSummary_LongBashPreview(t *testing.T) {
	t.Parallel()

	got := ResultSummary("Bash", strings.Repeat("é", 100), false)
	assert.Equal(t, strings.Repeat("é", 80)+"...", got)
}
