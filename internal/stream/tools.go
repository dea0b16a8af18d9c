package stream

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxCommandRunes = 60
	maxPreviewRunes = 80
)

// unknownTool names results whose invocation was never seen.
const unknownTool = "tool"

var foundFilesPattern = regexp.MustCompile(`^Found (\d+) files?`)

// InputSummary extracts the one-line description shown in a tool banner.
func InputSummary(name string, input map[string]interface{}) string {
	switch name {
	case "Read", "Write", "Edit", "MultiEdit":
		return stringField(input, "file_path")
	case "NotebookEdit":
		return stringField(input, "notebook_path")
	case "Bash":
		if desc := stringField(input, "description"); desc != "" {
			return desc
		}
		return truncateRunes(stringField(input, "command"), maxCommandRunes)
	case "Grep":
		pattern := stringField(input, "pattern")
		if pattern == "" {
			return ""
		}
		summary := "/" + pattern + "/"
		if path := stringField(input, "path"); path != "" {
			summary += " in " + path
		}
		return summary
	case "Glob":
		return stringField(input, "pattern")
	case "Task":
		return stringField(input, "description")
	case "WebFetch":
		return stringField(input, "url")
	case "WebSearch":
		return stringField(input, "query")
	case "TodoWrite":
		if todos, ok := input["todos"].([]interface{}); ok {
			return fmt.Sprintf("%d todos", len(todos))
		}
	}
	return ""
}

// ResultSummary condenses a tool's output into the one-line summary shown
// under its banner.
func ResultSummary(name, content string, isError bool) string {
	if isError {
		first, _ := firstLine(content)
		if first == "" {
			return "error"
		}
		return "error: " + truncateRunes(first, maxPreviewRunes)
	}

	switch name {
	case "Read":
		trimmed := strings.TrimRight(content, "\n")
		if strings.TrimSpace(trimmed) == "" {
			return "empty"
		}
		return plural(strings.Count(trimmed, "\n")+1, "line", "lines")
	case "Grep", "Glob":
		return matchSummary(content)
	case "Bash":
		first, rest := firstLine(content)
		if first == "" {
			return "(no output)"
		}
		summary := truncateRunes(first, maxPreviewRunes)
		if rest > 0 {
			summary += fmt.Sprintf(" (+%d lines)", rest)
		}
		return summary
	case "Edit", "Write", "MultiEdit", "NotebookEdit":
		return "✓ done"
	case "Task":
		return "completed"
	case "TodoWrite":
		return "updated"
	}
	return "done"
}

func matchSummary(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || strings.HasPrefix(trimmed, "No files found") || strings.HasPrefix(trimmed, "No matches found") {
		return "no matches"
	}

	if m := foundFilesPattern.FindStringSubmatch(trimmed); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == 0 {
			return "no matches"
		}
		return plural(n, "file", "files")
	}

	n := 0
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return plural(n, "file", "files")
}

// firstLine returns the first non-blank line of s and how many non-blank
// lines follow it.
func firstLine(s string) (string, int) {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	if len(lines) == 0 {
		return "", 0
	}
	return strings.TrimSpace(lines[0]), len(lines) - 1
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}

func stringField(input map[string]interface{}, key string) string {
	if input == nil {
		return ""
	}
	s, _ := input[key].(string)
	return s
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
