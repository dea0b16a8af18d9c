package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Dir is the directory, relative to the project root, holding all ralph files.
const Dir = ".ralph"

// Relative paths of the fixed files, as seen from the project root. These are
// the paths handed to an executor's ReadFile so sandboxed runs resolve them
// against their own checkout.
var (
	StatePath    = filepath.Join(Dir, "state.json")
	QueuePath    = filepath.Join(Dir, "queue.json")
	BacklogPath  = filepath.Join(Dir, "backlog.json")
	ProgressPath = filepath.Join(Dir, "progress.txt")
	LockPath     = filepath.Join(Dir, "lock.json")
	LogsDir      = filepath.Join(Dir, "logs")
	FeaturesDir  = filepath.Join(Dir, "features")
)

// Store reads and writes ralph's JSON files under a project root.
// Every write replaces the whole file.
type Store struct {
	basePath string
	aliveFn  func(pid int) bool
}

// NewStore creates a new Store rooted at the given project directory.
func NewStore(basePath string) *Store {
	return &Store{basePath: basePath}
}

// BasePath returns the project root.
func (s *Store) BasePath() string {
	return s.basePath
}

// Path resolves a project-relative path against the store root.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.basePath, rel)
}

// Initialized reports whether the .ralph directory exists.
func (s *Store) Initialized() bool {
	info, err := os.Stat(s.Path(Dir))
	return err == nil && info.IsDir()
}

func (s *Store) writeJSON(rel string, v interface{}) error {
	path := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rel, err)
	}
	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", rel, err)
	}
	return nil
}

// readJSON decodes rel into v. It returns false when the file does not exist.
func (s *Store) readJSON(rel string, v interface{}) (bool, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", rel, err)
	}
	return true, nil
}

// LoadRunState reads state.json. Returns nil, nil if no state has been written.
func (s *Store) LoadRunState() (*RunState, error) {
	var rs RunState
	found, err := s.readJSON(StatePath, &rs)
	if err != nil || !found {
		return nil, err
	}
	return &rs, nil
}

// SaveRunState replaces state.json.
func (s *Store) SaveRunState(rs *RunState) error {
	return s.writeJSON(StatePath, rs)
}

// UpdateRunState loads state.json, applies fn and writes the result back.
// A missing state file starts from an empty RunState.
func (s *Store) UpdateRunState(fn func(*RunState)) (*RunState, error) {
	rs, err := s.LoadRunState()
	if err != nil {
		return nil, err
	}
	if rs == nil {
		rs = &RunState{StartedAt: time.Now().UTC()}
	}
	fn(rs)
	if err := s.SaveRunState(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// LoadTaskFile reads a TaskFile at a project-relative path.
// Returns nil, nil if the file does not exist.
func (s *Store) LoadTaskFile(rel string) (*TaskFile, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return ParseTaskFile(data)
}

// SaveTaskFile replaces a TaskFile at a project-relative path.
func (s *Store) SaveTaskFile(rel string, tf *TaskFile) error {
	if tf.Tasks == nil {
		tf = &TaskFile{Tasks: []Task{}}
	}
	return s.writeJSON(rel, tf)
}

// AppendLog appends text to the run transcript for a unit of work.
func (s *Store) AppendLog(unit, text string) error {
	if unit == "" {
		unit = "backlog"
	}
	dir := s.Path(LogsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, unit+".log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}
