package executor

import (
	"context"
	"errors"
	"sync"
)

// ErrNoScriptedRun is returned by Fake.Execute when its script is exhausted.
var ErrNoScriptedRun = errors.New("fake executor: no scripted run left")

// FakeRun scripts one Fake.Execute call.
type FakeRun struct {
	// Stdout and Stderr are delivered chunk by chunk.
	Stdout   []string
	Stderr   []string
	ExitCode int
	// Err is returned instead of a result, as if the agent failed to start.
	Err error
	// Files are written to the fake filesystem before output is delivered.
	Files map[string]string
	// Remove deletes files from the fake filesystem.
	Remove []string
	// BlockUntilDone makes the run wait for ctx cancellation after its
	// output, then exit with -1.
	BlockUntilDone bool
	// Started, when non-nil, is closed once output has been delivered.
	Started chan struct{}
}

// FakeCall records one Fake.Execute call.
type FakeCall struct {
	Prompt string
	Opts   ExecuteOptions
}

// Fake is a scripted Executor for tests.
type Fake struct {
	mu       sync.Mutex
	runs     []FakeRun
	calls    []FakeCall
	files    map[string][]byte
	inits    int
	cleanups int

	// InitErr is returned by Initialize.
	InitErr error
}

// NewFake creates a Fake that plays runs in order.
func NewFake(runs ...FakeRun) *Fake {
	return &Fake{runs: runs, files: make(map[string][]byte)}
}

// Push appends more scripted runs.
func (f *Fake) Push(runs ...FakeRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runs...)
}

// SetFile places a file in the fake filesystem.
func (f *Fake) SetFile(path, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = []byte(content)
}

func (f *Fake) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.InitErr
}

func (f *Fake) Execute(ctx context.Context, prompt string, onStdout, onStderr func(string), opts ExecuteOptions) (*ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Prompt: prompt, Opts: opts})
	if len(f.runs) == 0 {
		f.mu.Unlock()
		return nil, ErrNoScriptedRun
	}
	run := f.runs[0]
	f.runs = f.runs[1:]
	if run.Err == nil {
		for path, content := range run.Files {
			f.files[path] = []byte(content)
		}
		for _, path := range run.Remove {
			delete(f.files, path)
		}
	}
	f.mu.Unlock()

	if run.Err != nil {
		return nil, run.Err
	}

	var output string
	for _, chunk := range run.Stdout {
		output += chunk
		if onStdout != nil {
			onStdout(chunk)
		}
	}
	for _, chunk := range run.Stderr {
		if onStderr != nil {
			onStderr(chunk)
		}
	}
	if run.Started != nil {
		close(run.Started)
	}

	if run.BlockUntilDone {
		<-ctx.Done()
		return &ExecResult{ExitCode: -1, Output: output}, nil
	}
	return &ExecResult{ExitCode: run.ExitCode, Output: output}, nil
}

func (f *Fake) ReadFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (f *Fake) Cleanup(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return nil
}

// Calls returns the recorded Execute calls.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

// Inits returns how many times Initialize was called.
func (f *Fake) Inits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

// Cleanups returns how many times Cleanup was called.
func (f *Fake) Cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanups
}

// Remaining returns how many scripted runs have not been played.
func (f *Fake) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

var _ Executor = (*Fake)(nil)
