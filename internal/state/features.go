package state

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var branchLine = regexp.MustCompile(`(?m)^Branch:\s*(.+)$`)

// FeatureDir returns the project-relative directory of a named feature.
func FeatureDir(name string) string {
	return filepath.Join(FeaturesDir, name)
}

// FeatureTasksPath returns the project-relative TaskFile path of a feature.
func FeatureTasksPath(name string) string {
	return filepath.Join(FeatureDir(name), "tasks.json")
}

// FeaturePlanPath returns the project-relative plan path of a feature.
func FeaturePlanPath(name string) string {
	return filepath.Join(FeatureDir(name), "plan.md")
}

// FeatureProgressPath returns the project-relative progress log of a feature.
func FeatureProgressPath(name string) string {
	return filepath.Join(FeatureDir(name), "progress.txt")
}

// TasksPath returns the TaskFile path for a unit of work. The empty name is
// the shared backlog.
func TasksPath(unit string) string {
	if unit == "" {
		return BacklogPath
	}
	return FeatureTasksPath(unit)
}

// ValidateFeatureName rejects names that would escape the features directory.
func ValidateFeatureName(name string) error {
	if name == "" {
		return fmt.Errorf("feature name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid feature name %q", name)
	}
	return nil
}

// FeatureExists reports whether the named feature has a TaskFile.
func (s *Store) FeatureExists(name string) bool {
	info, err := os.Stat(s.Path(FeatureTasksPath(name)))
	return err == nil && !info.IsDir()
}

// EnsureProgressFile creates an empty progress log for the unit when missing.
func (s *Store) EnsureProgressFile(unit string) error {
	rel := ProgressPath
	if unit != "" {
		rel = FeatureProgressPath(unit)
	}
	path := s.Path(rel)

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat progress file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create progress directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return fmt.Errorf("failed to create progress file: %w", err)
	}
	return nil
}

// ListFeatures returns the names of all feature directories, sorted.
func (s *Store) ListFeatures() ([]string, error) {
	entries, err := os.ReadDir(s.Path(FeaturesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read features directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// MostRecentFeature returns the feature whose directory was modified last,
// or "" when there are none.
func (s *Store) MostRecentFeature() (string, error) {
	names, err := s.ListFeatures()
	if err != nil {
		return "", err
	}

	var newest string
	var newestMod int64
	for _, name := range names {
		info, err := os.Stat(s.Path(FeatureDir(name)))
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = name, mod
		}
	}
	return newest, nil
}

// FeatureBranch returns the branch named on the "Branch:" line of the
// feature's plan, or "" when the plan is missing or names none.
func (s *Store) FeatureBranch(name string) string {
	data, err := os.ReadFile(s.Path(FeaturePlanPath(name)))
	if err != nil {
		return ""
	}
	m := branchLine.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(string(m[1]))
}

// DeleteFeature removes the feature's directory and everything in it.
func (s *Store) DeleteFeature(name string) error {
	if err := ValidateFeatureName(name); err != nil {
		return err
	}
	if !s.FeatureExists(name) {
		return fmt.Errorf("feature '%s' not found", name)
	}
	if err := os.RemoveAll(s.Path(FeatureDir(name))); err != nil {
		return fmt.Errorf("failed to delete feature %s: %w", name, err)
	}
	return nil
}
