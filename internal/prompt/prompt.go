// Package prompt assembles the prompts handed to the agent.
//
// Instructions come from .ralph/prompts/, seeded from embedded defaults by
// setup. A prompt file in the project overrides the embedded default of the
// same name. Each prompt starts with @-references to the files the agent
// should load for the unit of work.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/thruflo/ralph/internal/state"
)

//go:embed defaults
var defaults embed.FS

// Dir is the prompts directory relative to the project root.
var Dir = filepath.Join(state.Dir, "prompts")

// Hook names an optional agent pass run around the main iterations.
type Hook string

const (
	HookOnIteration Hook = "on-iteration"
	HookOnComplete  Hook = "on-complete"
)

const featurePlaceholder = "{{feature}}"

// ErrNotFound is returned when neither the project nor the embedded defaults
// have the requested prompt.
var ErrNotFound = errors.New("prompt not found")

// Set reads prompts for one project.
type Set struct {
	base string
}

// New creates a Set for the project rooted at base.
func New(base string) *Set {
	return &Set{base: base}
}

// Backlog returns the prompt for working through the shared backlog.
func (s *Set) Backlog() (string, error) {
	instructions, err := s.load("backlog.md")
	if err != nil {
		return "", err
	}
	return refs(state.BacklogPath, state.ProgressPath) + "\n" + instructions, nil
}

// Feature returns the iterative prompt for a named feature.
func (s *Set) Feature(name string) (string, error) {
	return s.featurePrompt("feature.md", name)
}

// Oneshot returns the single-session prompt for a named feature.
func (s *Set) Oneshot(name string) (string, error) {
	return s.featurePrompt("oneshot.md", name)
}

func (s *Set) featurePrompt(file, name string) (string, error) {
	instructions, err := s.load(file)
	if err != nil {
		return "", err
	}
	instructions = strings.ReplaceAll(instructions, featurePlaceholder, name)
	return featureRefs(name) + "\n" + instructions, nil
}

// Hook returns the prompt for hook. ok is false when the project has no
// prompt file for it, which disables the hook. A non-empty feature prefixes
// the feature's files.
func (s *Set) Hook(hook Hook, feature string) (prompt string, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.base, Dir, "hooks", string(hook)+".md"))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s hook prompt: %w", hook, err)
	}
	instructions := string(data)
	if feature == "" {
		return instructions, true, nil
	}
	return featureRefs(feature) + "\n" + strings.ReplaceAll(instructions, featurePlaceholder, feature), true, nil
}

// Refresh returns the prompt asking the agent to bring open tasks up to date
// with the codebase. An empty feature targets the backlog.
func (s *Set) Refresh(feature string) (string, error) {
	instructions, err := s.load("refresh.md")
	if err != nil {
		return "", err
	}
	if feature == "" {
		return refs(state.BacklogPath) + "\n\n" + instructions, nil
	}
	return refs(state.FeaturePlanPath(feature), state.FeatureTasksPath(feature)) + "\n\n" + instructions, nil
}

// Review describes a feature's progress ahead of a review prompt. Empty
// fields are left out.
type Review struct {
	Tasks   *state.TaskFile
	GitLog  string
	GitDiff string
}

// Named renders the prompt called name as a review of feature. Project
// prompts of any name are accepted, so "report" and "review" are only the
// defaults.
func (s *Set) Named(name, feature string, rv Review) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid prompt name %q", name)
	}
	instructions, err := s.load(name + ".md")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(featureRefs(feature))
	fmt.Fprintf(&b, "\n\nYou are reviewing the progress of the %q feature.\n", feature)
	if rv.Tasks != nil {
		total := len(rv.Tasks.Tasks)
		open := len(rv.Tasks.OpenTasks())
		fmt.Fprintf(&b, "\n## Task Summary\n- Total tasks: %d\n- Completed: %d\n- Remaining: %d\n", total, total-open, open)
	}
	section(&b, "Recent Git Activity", rv.GitLog)
	section(&b, "Changes in Branch", rv.GitDiff)
	b.WriteString("\n")
	b.WriteString(strings.ReplaceAll(instructions, featurePlaceholder, feature))
	return b.String(), nil
}

func section(b *strings.Builder, title, body string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n```\n%s\n```\n", title, body)
}

func (s *Set) load(file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.base, Dir, file))
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read prompt %s: %w", file, err)
	}
	data, err = defaults.ReadFile(path.Join("defaults", file))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(Dir, file))
	}
	return string(data), nil
}

func featureRefs(name string) string {
	return refs(state.FeaturePlanPath(name), state.FeatureTasksPath(name), state.FeatureProgressPath(name))
}

func refs(paths ...string) string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = "@" + filepath.ToSlash(p)
	}
	return strings.Join(out, " ")
}

// WriteDefaults copies the embedded prompts into the project's prompts
// directory. Existing files are kept unless force is set. It returns the
// project-relative paths written.
func WriteDefaults(base string, force bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(defaults, "defaults", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := filepath.Join(Dir, filepath.FromSlash(strings.TrimPrefix(p, "defaults/")))
		dest := filepath.Join(base, rel)
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return nil
			}
		}
		data, err := defaults.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("failed to create prompts directory: %w", err)
		}
		if err := atomic.WriteFile(dest, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
		if err := os.Chmod(dest, 0o644); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", rel, err)
		}
		written = append(written, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}
