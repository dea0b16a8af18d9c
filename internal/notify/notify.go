// Package notify delivers best-effort notifications about terminal run
// events. Every Notifier swallows its own failures.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/tui"
)

// Priority is the urgency of a Message.
type Priority string

const (
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
)

// Message is one notification.
type Message struct {
	Title    string
	Body     string
	Priority Priority
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Message) {}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) {
	for _, n := range m {
		n.Notify(ctx, msg)
	}
}

const ntfyTimeout = 5 * time.Second

// Ntfy posts notifications to an ntfy topic URL.
type Ntfy struct {
	URL    string
	Client *http.Client
}

// NewNtfy creates an Ntfy notifier with an instrumented HTTP client.
func NewNtfy(url string) *Ntfy {
	return &Ntfy{
		URL: url,
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   ntfyTimeout,
		},
	}
}

func (n *Ntfy) Notify(ctx context.Context, msg Message) {
	if err := n.send(ctx, msg); err != nil {
		logging.Debug("ntfy notification failed", "error", err)
	}
}

func (n *Ntfy) send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, ntfyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, strings.NewReader(msg.Body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Title", msg.Title)
	priority := msg.Priority
	if priority == "" {
		priority = PriorityDefault
	}
	req.Header.Set("Priority", string(priority))

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

// Desktop shows a native notification via osascript on macOS. It does
// nothing on other platforms.
type Desktop struct {
	goos string
	run  func(name string, args ...string) error
}

// NewDesktop creates a Desktop notifier for the running platform.
func NewDesktop() *Desktop {
	return &Desktop{goos: runtime.GOOS, run: runCommand}
}

func (d *Desktop) Notify(ctx context.Context, msg Message) {
	if d.goos != "darwin" {
		return
	}
	script := fmt.Sprintf(`display notification %q with title %q`, msg.Body, msg.Title)
	if err := d.run("osascript", "-e", script); err != nil {
		logging.Debug("desktop notification failed", "error", err)
	}
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Bell rings the terminal bell for high-priority messages.
type Bell struct {
	Out io.Writer
}

func (b Bell) Notify(ctx context.Context, msg Message) {
	if msg.Priority == PriorityHigh && b.Out != nil {
		fmt.Fprint(b.Out, tui.Bell)
	}
}
