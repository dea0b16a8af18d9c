// Package watch triggers runs when new open tasks appear in a project's task
// files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/state"
)

const (
	DefaultDebounce = time.Second
	DefaultRescan   = 10 * time.Second
)

// ErrNothingToWatch is returned when the project has no TaskFile at all.
var ErrNothingToWatch = errors.New("no files to watch, create a backlog or feature first")

// Watcher watches the backlog and every feature TaskFile. When a change adds
// open tasks to a unit, OnWork is called for it. Calls are serial.
type Watcher struct {
	Store *state.Store
	// OnWork runs the unit. The empty feature is the backlog.
	OnWork   func(ctx context.Context, feature string)
	Debounce time.Duration
	Rescan   time.Duration
	Out      io.Writer

	fs        *fsnotify.Watcher
	baselines map[string][]string
	dirs      map[string]bool
	timers    map[string]*time.Timer
	due       chan string

	ready func()
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Debounce <= 0 {
		w.Debounce = DefaultDebounce
	}
	if w.Rescan <= 0 {
		w.Rescan = DefaultRescan
	}
	if w.Out == nil {
		w.Out = os.Stdout
	}
	w.baselines = make(map[string][]string)
	w.dirs = make(map[string]bool)
	w.timers = make(map[string]*time.Timer)
	w.due = make(chan string, 16)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()
	w.fs = fsw

	if tf := w.load(""); tf != nil {
		w.track("", tf)
	}
	features, err := w.Store.ListFeatures()
	if err != nil {
		return err
	}
	for _, name := range features {
		if tf := w.load(name); tf != nil {
			w.track(name, tf)
		}
	}
	if len(w.baselines) == 0 {
		return ErrNothingToWatch
	}

	fmt.Fprintln(w.Out, "👀 Ralph Watch Mode")
	fmt.Fprintln(w.Out)
	fmt.Fprintln(w.Out, "Watching:")
	for _, name := range append([]string{""}, features...) {
		if _, ok := w.baselines[name]; ok {
			fmt.Fprintf(w.Out, "  - %s\n", filepath.ToSlash(state.TasksPath(name)))
		}
	}
	fmt.Fprintf(w.Out, "\nPress Ctrl+C to stop\n\n")

	if w.ready != nil {
		w.ready()
	}

	rescan := time.NewTicker(w.Rescan)
	defer rescan.Stop()
	defer func() {
		for _, t := range w.timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(w.Out, "\n🛑 Stopping watch mode...")
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if name, ok := w.unitFor(ev.Name); ok {
				w.schedule(ctx, name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("file watcher error", "error", err)
		case name := <-w.due:
			delete(w.timers, name)
			w.check(ctx, name)
		case <-rescan.C:
			w.rescan()
		}
	}
}

func (w *Watcher) load(feature string) *state.TaskFile {
	tf, err := w.Store.LoadTaskFile(state.TasksPath(feature))
	if err != nil {
		logging.Debug("unreadable task file", "path", state.TasksPath(feature), "error", err)
		return nil
	}
	return tf
}

// track records the unit's baseline and watches the directory holding its
// TaskFile.
func (w *Watcher) track(feature string, tf *state.TaskFile) {
	w.baselines[feature] = openTitles(tf)
	dir := filepath.Dir(w.Store.Path(state.TasksPath(feature)))
	if w.dirs[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		logging.Warn("could not watch directory", "dir", dir, "error", err)
		return
	}
	w.dirs[dir] = true
}

// unitFor maps a changed path to the unit whose TaskFile it is.
func (w *Watcher) unitFor(path string) (string, bool) {
	path = filepath.Clean(path)
	if path == filepath.Clean(w.Store.Path(state.BacklogPath)) {
		_, ok := w.baselines[""]
		return "", ok
	}
	if filepath.Base(path) != "tasks.json" {
		return "", false
	}
	dir := filepath.Dir(path)
	if filepath.Dir(dir) != filepath.Clean(w.Store.Path(state.FeaturesDir)) {
		return "", false
	}
	name := filepath.Base(dir)
	_, ok := w.baselines[name]
	return name, ok
}

func (w *Watcher) schedule(ctx context.Context, feature string) {
	if t, ok := w.timers[feature]; ok {
		t.Stop()
	}
	w.timers[feature] = time.AfterFunc(w.Debounce, func() {
		select {
		case w.due <- feature:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) check(ctx context.Context, feature string) {
	tf := w.load(feature)
	if tf == nil {
		logging.Debug("task file gone, no longer watching", "unit", feature)
		delete(w.baselines, feature)
		return
	}

	titles := openTitles(tf)
	added := newTitles(w.baselines[feature], titles)
	if len(added) == 0 {
		w.baselines[feature] = titles
		return
	}

	fmt.Fprintf(w.Out, "\n📝 New tasks detected in %s:\n", filepath.ToSlash(state.TasksPath(feature)))
	for _, title := range added {
		fmt.Fprintf(w.Out, "  + %s\n", title)
	}
	fmt.Fprintln(w.Out)

	w.OnWork(ctx, feature)

	if tf := w.load(feature); tf != nil {
		w.baselines[feature] = openTitles(tf)
	} else {
		w.baselines[feature] = titles
	}
	if ctx.Err() == nil {
		fmt.Fprintf(w.Out, "\n👀 Watching for new tasks...\n\n")
	}
}

func (w *Watcher) rescan() {
	features, err := w.Store.ListFeatures()
	if err != nil {
		logging.Warn("failed to rescan features", "error", err)
		return
	}
	for _, name := range features {
		if _, ok := w.baselines[name]; ok {
			continue
		}
		if tf := w.load(name); tf != nil {
			w.track(name, tf)
			fmt.Fprintf(w.Out, "📁 New feature discovered: %s\n", name)
		}
	}
	if _, ok := w.baselines[""]; !ok {
		if tf := w.load(""); tf != nil {
			w.track("", tf)
			fmt.Fprintln(w.Out, "📁 Backlog discovered")
		}
	}
}

func openTitles(tf *state.TaskFile) []string {
	open := tf.OpenTasks()
	titles := make([]string, len(open))
	for i, t := range open {
		titles[i] = t.Title
	}
	return titles
}

// newTitles returns the titles in current that are not in baseline.
func newTitles(baseline, current []string) []string {
	seen := make(map[string]bool, len(baseline))
	for _, t := range baseline {
		seen[t] = true
	}
	var added []string
	for _, t := range current {
		if !seen[t] {
			added = append(added, t)
		}
	}
	return added
}
