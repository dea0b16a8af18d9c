// Package services runs the auxiliary dev processes an agent session relies
// on, such as a dev server or a database, and merges the MCP server manifests
// handed to the agent.
package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/errgroup"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/logging"
)

// DefaultReadyTimeout bounds the wait for a service's ready pattern.
const DefaultReadyTimeout = 30 * time.Second

const stopGrace = 3 * time.Second

// Service is a validated service declaration.
type Service struct {
	Name         string
	Command      string
	Args         []string
	ReadyPattern *regexp.Regexp
	ReadyTimeout time.Duration
	OpenURL      string
}

// FromConfig converts service declarations from config.yaml.
func FromConfig(decls []config.Service) ([]Service, error) {
	out := make([]Service, 0, len(decls))
	for _, d := range decls {
		svc := Service{
			Name:         d.Name,
			Command:      d.Command,
			Args:         d.Args,
			ReadyTimeout: DefaultReadyTimeout,
			OpenURL:      d.OpenURL,
		}
		if d.ReadyTimeoutMS > 0 {
			svc.ReadyTimeout = time.Duration(d.ReadyTimeoutMS) * time.Millisecond
		}
		if d.ReadyPattern != "" {
			re, err := regexp.Compile(d.ReadyPattern)
			if err != nil {
				return nil, fmt.Errorf("failed to compile ready pattern for service %s: %w", d.Name, err)
			}
			svc.ReadyPattern = re
		}
		out = append(out, svc)
	}
	return out, nil
}

// Options configures a Manager.
type Options struct {
	// Dir is the working directory for every service.
	Dir string
	// LogsDir receives one <name>.log per service. Empty disables logs.
	LogsDir string
	// UsePTY runs services on a pseudo-terminal so tools that only
	// line-buffer on a TTY flush their output promptly.
	UsePTY bool
	// Opener opens a service URL once it is ready. Nil uses the platform
	// opener.
	Opener func(url string) error
}

// Manager starts and stops a fixed set of services.
type Manager struct {
	services []Service
	opts     Options

	mu      sync.Mutex
	procs   []*process
	stopped bool
}

type process struct {
	svc     Service
	cmd     *exec.Cmd
	out     io.ReadCloser
	log     *os.File
	ready   chan struct{}
	done    chan struct{}
	scanned chan struct{}
}

// NewManager creates a Manager for services.
func NewManager(services []Service, opts Options) *Manager {
	if opts.Opener == nil {
		opts.Opener = openURL
	}
	return &Manager{services: services, opts: opts}
}

// Start launches every service concurrently and waits for each to become
// ready. A service that misses its ready timeout or exits early is logged and
// left behind; only a failure to launch is returned as an error.
func (m *Manager) Start(ctx context.Context) error {
	if len(m.services) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range m.services {
		svc := svc
		g.Go(func() error {
			p, err := m.launch(svc)
			if err != nil {
				return err
			}
			m.track(p)
			m.awaitReady(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.Stop()
		return err
	}
	return nil
}

func (m *Manager) track(p *process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs = append(m.procs, p)
}

func (m *Manager) launch(svc Service) (*process, error) {
	cmd := exec.Command(svc.Command, svc.Args...)
	cmd.Dir = m.opts.Dir
	cmd.WaitDelay = stopGrace
	configureProcAttr(cmd, m.opts.UsePTY)

	p := &process{
		svc:     svc,
		cmd:     cmd,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
		scanned: make(chan struct{}),
	}

	if m.opts.LogsDir != "" {
		if err := os.MkdirAll(m.opts.LogsDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(m.opts.LogsDir, svc.Name+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log for service %s: %w", svc.Name, err)
		}
		p.log = f
	}

	var pw *io.PipeWriter
	if m.opts.UsePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			p.closeLog()
			return nil, fmt.Errorf("failed to start service %s: %w", svc.Name, err)
		}
		p.out = ptmx
	} else {
		var pr *io.PipeReader
		pr, pw = io.Pipe()
		cmd.Stdout = pw
		cmd.Stderr = pw
		if err := cmd.Start(); err != nil {
			p.closeLog()
			return nil, fmt.Errorf("failed to start service %s: %w", svc.Name, err)
		}
		p.out = pr
	}

	logging.Debug("started service", "service", svc.Name, "pid", cmd.Process.Pid, "pty", m.opts.UsePTY)

	go p.scan()
	go func() {
		err := cmd.Wait()
		if pw != nil {
			pw.Close()
		}
		logging.Debug("service exited", "service", svc.Name, "error", err)
		close(p.done)
	}()

	if svc.ReadyPattern == nil {
		close(p.ready)
	}
	return p, nil
}

// scan tees service output to its log and watches for the ready pattern.
func (p *process) scan() {
	defer close(p.scanned)
	var once sync.Once
	scanner := bufio.NewScanner(p.out)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if p.log != nil {
			fmt.Fprintln(p.log, line)
		}
		if p.svc.ReadyPattern != nil && p.svc.ReadyPattern.MatchString(line) {
			once.Do(func() { close(p.ready) })
		}
	}
	// A PTY read returns EIO once the child exits; that is a normal end.
	if err := scanner.Err(); err != nil {
		logging.Debug("service output scan stopped", "service", p.svc.Name, "error", err)
	}
	// Keep reading so the service never blocks writing to an unread pipe.
	var sink io.Writer = io.Discard
	if p.log != nil {
		sink = p.log
	}
	io.Copy(sink, p.out)
}

func (m *Manager) awaitReady(ctx context.Context, p *process) {
	timer := time.NewTimer(p.svc.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-p.ready:
		logging.Info("service ready", "service", p.svc.Name)
		if p.svc.OpenURL != "" {
			if err := m.opts.Opener(p.svc.OpenURL); err != nil {
				logging.Debug("failed to open service url", "service", p.svc.Name, "url", p.svc.OpenURL, "error", err)
			}
		}
	case <-p.done:
		logging.Warn("service exited before becoming ready", "service", p.svc.Name)
	case <-timer.C:
		logging.Warn("service not ready before timeout, continuing", "service", p.svc.Name, "timeout", p.svc.ReadyTimeout)
	case <-ctx.Done():
	}
}

// Stop terminates every service's process group and closes the logs. It is
// safe to call more than once.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	procs := m.procs
	m.procs = nil
	m.mu.Unlock()

	for _, p := range procs {
		p.stop()
	}
	return nil
}

func (p *process) stop() {
	select {
	case <-p.done:
	default:
		_ = signalGroup(p.cmd.Process, syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(stopGrace):
			_ = signalGroup(p.cmd.Process, syscall.SIGKILL)
			<-p.done
		}
	}
	select {
	case <-p.scanned:
	case <-time.After(stopGrace):
	}
	p.out.Close()
	p.closeLog()
	logging.Debug("stopped service", "service", p.svc.Name)
}

func (p *process) closeLog() {
	if p.log != nil {
		p.log.Close()
	}
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return fmt.Errorf("opening urls is not supported on %s", runtime.GOOS)
	}
	return cmd.Start()
}
