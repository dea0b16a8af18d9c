package sprite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrMockFileNotFound is returned by MockSpriteClient.ReadFile for paths that
// were never written.
var ErrMockFileNotFound = errors.New("mock sprite: file not found")

// MockSpriteClient implements Client for tests in this and other packages.
// It records every call and keeps an in-memory filesystem and sprite set.
type MockSpriteClient struct {
	mu sync.Mutex

	files   map[string][]byte
	sprites map[string]Info

	executeFunc       func(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error)
	executeOutputFunc func(ctx context.Context, name string, dir string, env []string, args ...string) ([]byte, []byte, int, error)

	createErr    error
	deleteErr    error
	readFileErrs map[string]error

	createCalls  []MockCreateCall
	deleteCalls  []string
	executeCalls []MockExecuteCall
	writeCalls   []MockWriteCall
	readCalls    []MockReadCall
}

// MockCreateCall records a Create call.
type MockCreateCall struct {
	Name       string
	Checkpoint string
}

// MockExecuteCall records an Execute or ExecuteOutput call.
type MockExecuteCall struct {
	Name      string
	Dir       string
	Env       []string
	Args      []string
	Streaming bool
	Terminal  bool
}

// Command returns the call's arguments joined by spaces.
func (c MockExecuteCall) Command() string {
	return strings.Join(c.Args, " ")
}

// MockWriteCall records a WriteFile call.
type MockWriteCall struct {
	Name    string
	Path    string
	Content []byte
}

// MockReadCall records a ReadFile call.
type MockReadCall struct {
	Name string
	Path string
}

// NewMockSpriteClient creates a new MockSpriteClient with no sprites.
func NewMockSpriteClient() *MockSpriteClient {
	return &MockSpriteClient{
		files:        make(map[string][]byte),
		sprites:      make(map[string]Info),
		readFileErrs: make(map[string]error),
	}
}

// Create records the call and registers the sprite.
func (m *MockSpriteClient) Create(ctx context.Context, name string, checkpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, MockCreateCall{Name: name, Checkpoint: checkpoint})
	if m.createErr != nil {
		return m.createErr
	}
	m.sprites[name] = Info{Name: name}
	return nil
}

// Delete records the call and unregisters the sprite.
func (m *MockSpriteClient) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, name)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.sprites, name)
	return nil
}

// Exists reports whether the sprite was created or added and not deleted.
func (m *MockSpriteClient) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sprites[name]
	return ok, nil
}

// List returns the registered sprites with the given prefix, sorted by name.
func (m *MockSpriteClient) List(ctx context.Context, prefix string) ([]Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Info
	for name, info := range m.sprites {
		if strings.HasPrefix(name, prefix) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Execute runs the configured execute function or returns an empty
// successful command.
func (m *MockSpriteClient) Execute(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error) {
	return m.execute(ctx, MockExecuteCall{Name: name, Dir: dir, Env: env, Args: args, Streaming: true})
}

// ExecuteTerminal behaves like Execute and records the call as a terminal
// session.
func (m *MockSpriteClient) ExecuteTerminal(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error) {
	return m.execute(ctx, MockExecuteCall{Name: name, Dir: dir, Env: env, Args: args, Streaming: true, Terminal: true})
}

func (m *MockSpriteClient) execute(ctx context.Context, call MockExecuteCall) (*Cmd, error) {
	m.mu.Lock()
	m.executeCalls = append(m.executeCalls, call)
	fn := m.executeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call.Name, call.Dir, call.Env, call.Args...)
	}
	return NewMockCmd(nil, nil, 0), nil
}

// ExecuteOutput runs the configured function or returns empty successful
// output.
func (m *MockSpriteClient) ExecuteOutput(ctx context.Context, name string, dir string, env []string, args ...string) ([]byte, []byte, int, error) {
	m.mu.Lock()
	m.executeCalls = append(m.executeCalls, MockExecuteCall{Name: name, Dir: dir, Env: env, Args: args})
	fn := m.executeOutputFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, name, dir, env, args...)
	}
	return nil, nil, 0, nil
}

// WriteFile records the call and stores content in the mock filesystem.
func (m *MockSpriteClient) WriteFile(ctx context.Context, name string, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls = append(m.writeCalls, MockWriteCall{Name: name, Path: path, Content: content})
	m.files[path] = content
	return nil
}

// ReadFile returns content from the mock filesystem, or ErrMockFileNotFound.
func (m *MockSpriteClient) ReadFile(ctx context.Context, name string, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readCalls = append(m.readCalls, MockReadCall{Name: name, Path: path})

	if err, ok := m.readFileErrs[path]; ok {
		return nil, err
	}
	if content, ok := m.files[path]; ok {
		return content, nil
	}
	return nil, fmt.Errorf("failed to read file %s: %w", path, ErrMockFileNotFound)
}

// SetFile sets a file in the mock filesystem.
func (m *MockSpriteClient) SetFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// GetFile gets a file from the mock filesystem.
func (m *MockSpriteClient) GetFile(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	return content, ok
}

// SetReadFileError makes ReadFile fail for path.
func (m *MockSpriteClient) SetReadFileError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFileErrs[path] = err
}

// AddSprite registers an existing sprite, as if created earlier.
func (m *MockSpriteClient) AddSprite(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sprites[info.Name] = info
}

// SetExecuteFunc sets a custom streaming execute function.
func (m *MockSpriteClient) SetExecuteFunc(fn func(ctx context.Context, name string, dir string, env []string, args ...string) (*Cmd, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeFunc = fn
}

// SetExecuteOutputFunc sets a custom ExecuteOutput function.
func (m *MockSpriteClient) SetExecuteOutputFunc(fn func(ctx context.Context, name string, dir string, env []string, args ...string) ([]byte, []byte, int, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executeOutputFunc = fn
}

// SetCreateError makes Create fail.
func (m *MockSpriteClient) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetDeleteError makes Delete fail.
func (m *MockSpriteClient) SetDeleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// GetCreateCalls returns a copy of the recorded Create calls.
func (m *MockSpriteClient) GetCreateCalls() []MockCreateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCreateCall(nil), m.createCalls...)
}

// GetDeleteCalls returns a copy of the recorded Delete calls.
func (m *MockSpriteClient) GetDeleteCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleteCalls...)
}

// GetExecuteCalls returns a copy of the recorded Execute and ExecuteOutput calls.
func (m *MockSpriteClient) GetExecuteCalls() []MockExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockExecuteCall(nil), m.executeCalls...)
}

// GetWriteCalls returns a copy of the recorded WriteFile calls.
func (m *MockSpriteClient) GetWriteCalls() []MockWriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockWriteCall(nil), m.writeCalls...)
}

// GetReadCalls returns a copy of the recorded ReadFile calls.
func (m *MockSpriteClient) GetReadCalls() []MockReadCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockReadCall(nil), m.readCalls...)
}
