// Package runner drives the agent iteration loop.
//
// Run executes a unit of work (the shared backlog or a named feature) for up
// to a budget of iterations. After each iteration it persists RunState and
// checks whether the unit's TaskFile is complete or the agent declared itself
// stuck. When a unit completes, the next feature in the queue is started in
// the same process, so a queue drains without re-invocation. Terminal states
// map to distinct process exit codes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/notify"
	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/stream"
	"github.com/thruflo/ralph/internal/tracing"
	"github.com/thruflo/ralph/internal/tui"
)

// Markers the agent writes in its text output.
const (
	StuckMarker    = "<promise>STUCK</promise>"
	CompleteMarker = "<promise>COMPLETE</promise>"
)

// legacyStuckMarker is what older prompt files tell the agent to print.
const legacyStuckMarker = "<promise>I AM STUCK</promise>"

const (
	bannerWidth    = 40
	cleanupTimeout = 30 * time.Second
)

// ErrNoState is returned when the project has not been set up.
var ErrNoState = errors.New("no state found")

// Reason is the terminal state of a run.
type Reason int

const (
	ReasonCompleted Reason = iota
	ReasonMaxIterations
	ReasonStuck
	ReasonCancelled
	ReasonError
	ReasonSetup
	ReasonLocked
)

func (r Reason) String() string {
	switch r {
	case ReasonCompleted:
		return "completed"
	case ReasonMaxIterations:
		return "max_iterations_reached"
	case ReasonStuck:
		return "stuck"
	case ReasonCancelled:
		return "cancelled"
	case ReasonError:
		return "error"
	case ReasonSetup:
		return "setup"
	case ReasonLocked:
		return "locked"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ExitCode returns the process exit code for r. ReasonError has no fixed
// code; the agent's own code is carried in Result.ExitCode.
func (r Reason) ExitCode() int {
	switch r {
	case ReasonCompleted:
		return 0
	case ReasonStuck:
		return 2
	case ReasonCancelled:
		return 130
	default:
		return 1
	}
}

// Result is the outcome of Run or RunOnce.
type Result struct {
	Reason     Reason
	Unit       string
	Iterations int
	ExitCode   int
	Err        error
}

// Unit is one unit of work.
type Unit struct {
	// Feature names the feature; empty means the shared backlog.
	Feature string
	Prompt  string
	Model   string
}

// Name returns the feature name, or "backlog".
func (u Unit) Name() string {
	if u.Feature == "" {
		return "backlog"
	}
	return u.Feature
}

// Label is the human-readable description of the unit.
func (u Unit) Label() string {
	if u.Feature == "" {
		return "Backlog"
	}
	return "Feature: " + u.Feature
}

// TasksPath is the project-relative TaskFile of the unit.
func (u Unit) TasksPath() string {
	return state.TasksPath(u.Feature)
}

// ExecutorFactory creates the executor for one unit of work. The runner
// holds it for the unit's whole loop and cleans it up at the end.
type ExecutorFactory func(ctx context.Context, unit Unit) (executor.Executor, error)

// Hooks enables the optional agent passes.
type Hooks struct {
	OnIteration bool
	OnComplete  bool
}

// HookModels selects the model of each hook pass.
type HookModels struct {
	OnIteration string
	OnComplete  string
}

// Options configures a Runner.
type Options struct {
	Store       *state.Store
	NewExecutor ExecutorFactory
	Prompts     *prompt.Set
	Notifier    notify.Notifier
	Tracer      trace.Tracer

	Out    io.Writer
	ErrOut io.Writer
	Color  bool
	// MaxLines is the parser's truncation threshold. Zero uses the default.
	MaxLines int

	// MaxIterations overrides the budget in RunState for the first unit.
	MaxIterations int
	// Resume continues the first unit from RunState's iteration.
	Resume bool

	Hooks      Hooks
	HookModels HookModels
	// FeatureModel is used for features started from the queue.
	FeatureModel string
}

// Runner runs units of work.
type Runner struct {
	opts   Options
	out    io.Writer
	errOut io.Writer
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Tracer()
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.New(opts.Store.BasePath())
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}
	// stdout and stderr callbacks arrive on separate goroutines.
	mu := &sync.Mutex{}
	return &Runner{
		opts:   opts,
		out:    &syncWriter{mu: mu, w: opts.Out},
		errOut: &syncWriter{mu: mu, w: opts.ErrOut},
	}
}

type syncWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Run takes the run lock, then runs unit and every feature queued behind it
// until one does not complete. SIGINT and SIGTERM cancel the run.
func (r *Runner) Run(ctx context.Context, unit Unit) Result {
	lock, err := r.opts.Store.AcquireLock(unit.Name())
	if err != nil {
		fmt.Fprintf(r.errOut, "❌ %v\n", err)
		reason := ReasonError
		if errors.Is(err, state.ErrLocked) {
			reason = ReasonLocked
		}
		return Result{Reason: reason, Unit: unit.Name(), ExitCode: 1, Err: err}
	}
	defer func() {
		if err := r.opts.Store.ReleaseLock(lock.Owner); err != nil {
			logging.Warn("failed to release run lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	resume, budget := r.opts.Resume, r.opts.MaxIterations
	for {
		res := r.runUnit(ctx, unit, resume, budget)
		if res.Reason != ReasonCompleted {
			return res
		}
		next, ok := r.nextQueued()
		if !ok {
			return res
		}
		unit, resume, budget = next, false, 0
	}
}

// nextQueued pops queued features until one with a TaskFile is found.
func (r *Runner) nextQueued() (Unit, bool) {
	store := r.opts.Store
	for {
		name, ok, err := store.PopQueue()
		if err != nil {
			logging.Warn("failed to read queue", "error", err)
			return Unit{}, false
		}
		if !ok {
			return Unit{}, false
		}
		if !store.FeatureExists(name) {
			fmt.Fprintf(r.errOut, "⚠️  Queued feature '%s' not found, skipping\n", name)
			logging.Warn("skipping queued feature without tasks", "feature", name)
			continue
		}
		if err := store.EnsureProgressFile(name); err != nil {
			logging.Warn("failed to create progress file", "feature", name, "error", err)
		}
		p, err := r.opts.Prompts.Feature(name)
		if err != nil {
			logging.Warn("skipping queued feature without prompt", "feature", name, "error", err)
			continue
		}
		st := tui.NewStyle(r.opts.Color)
		fmt.Fprintf(r.out, "\n%s %s\n\n", st.Cyan("Starting next queued feature:"), name)
		return Unit{Feature: name, Prompt: p, Model: r.opts.FeatureModel}, true
	}
}

// unitRun carries the per-unit state of one iteration loop.
type unitRun struct {
	r        *Runner
	unit     Unit
	base     state.RunState
	exec     executor.Executor
	span     trace.Span
	style    tui.Style
	done     int
	cleaned  bool
	cleanCtx context.Context
}

func (u *unitRun) persist(iteration int, status state.Status) {
	rs := u.base
	rs.Iteration = iteration
	rs.Status = status
	rs.Feature = u.unit.Feature
	if err := u.r.opts.Store.SaveRunState(&rs); err != nil {
		logging.Warn("failed to save run state", "status", status, "error", err)
	}
	logging.Debug("run state", "iteration", iteration, "status", status, "unit", u.unit.Name())
}

func (u *unitRun) cleanup() {
	if u.cleaned || u.exec == nil {
		return
	}
	u.cleaned = true
	ctx, cancel := context.WithTimeout(u.cleanCtx, cleanupTimeout)
	defer cancel()
	if err := u.exec.Cleanup(ctx); err != nil {
		logging.Warn("executor cleanup failed", "unit", u.unit.Name(), "error", err)
	}
}

func (u *unitRun) finish(reason Reason, iterations, code int, err error) Result {
	u.span.SetAttributes(attribute.String("ralph.reason", reason.String()), attribute.Int("ralph.iterations", iterations))
	if err != nil {
		u.span.RecordError(err)
	}
	if reason != ReasonCompleted {
		u.span.SetStatus(codes.Error, reason.String())
	}
	u.cleanup()
	return Result{Reason: reason, Unit: u.unit.Name(), Iterations: iterations, ExitCode: code, Err: err}
}

func (u *unitRun) notify(ctx context.Context, title, body string, priority notify.Priority) {
	u.r.opts.Notifier.Notify(context.WithoutCancel(ctx), notify.Message{Title: title, Body: body, Priority: priority})
}

func (u *unitRun) cancelled() Result {
	fmt.Fprintf(u.r.out, "\n%s\n", u.style.Yellow("🛑 Cancelled"))
	u.persist(u.done, state.StatusCancelled)
	return u.finish(ReasonCancelled, u.done, ReasonCancelled.ExitCode(), context.Canceled)
}

func (r *Runner) runUnit(ctx context.Context, unit Unit, resume bool, budget int) Result {
	ctx, span := r.opts.Tracer.Start(ctx, "ralph.unit", trace.WithAttributes(attribute.String("ralph.unit", unit.Name())))
	defer span.End()

	st := tui.NewStyle(r.opts.Color)
	fmt.Fprintf(r.out, "🤖 Ralph %s - Autonomous Loop\n\n", unit.Label())

	rs, err := r.opts.Store.LoadRunState()
	if err != nil {
		logging.Debug("unreadable run state", "error", err)
	}
	if rs == nil {
		fmt.Fprintln(r.errOut, "❌ No state found. Run 'ralph setup' first.")
		span.SetStatus(codes.Error, "no state")
		return Result{Reason: ReasonSetup, Unit: unit.Name(), ExitCode: ReasonSetup.ExitCode(), Err: ErrNoState}
	}

	limit := rs.MaxIterations
	if budget > 0 {
		limit = budget
	}
	start := 0
	if resume {
		start = rs.Iteration
		fmt.Fprintf(r.out, "📍 Resuming from iteration %d\n\n", start)
	}

	fmt.Fprintf(r.out, "Tasks: %s\n", unit.TasksPath())
	fmt.Fprintf(r.out, "Max iterations: %d\n", limit)
	fmt.Fprintf(r.out, "Starting from: %d\n\n", start+1)
	fmt.Fprintf(r.out, "Press Ctrl+C to cancel\n\n")

	u := &unitRun{r: r, unit: unit, base: *rs, span: span, style: st, done: start, cleanCtx: context.WithoutCancel(ctx)}
	u.persist(start, state.StatusRunning)

	exec, err := r.opts.NewExecutor(ctx, unit)
	if err != nil {
		fmt.Fprintf(r.errOut, "❌ %v\n", err)
		u.persist(u.done, state.StatusError)
		return u.finish(ReasonError, u.done, 1, err)
	}
	u.exec = exec
	defer u.cleanup()

	if err := exec.Initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return u.cancelled()
		}
		fmt.Fprintf(r.errOut, "❌ failed to initialize executor: %v\n", err)
		u.persist(u.done, state.StatusError)
		u.notify(ctx, "Ralph Error", fmt.Sprintf("Executor failed to initialize: %v", err), notify.PriorityHigh)
		return u.finish(ReasonError, u.done, 1, err)
	}

	for i := start + 1; i <= limit; i++ {
		if ctx.Err() != nil {
			return u.cancelled()
		}

		fmt.Fprintln(r.out, st.Dim(tui.Rule(tui.BoxDouble, bannerWidth)))
		fmt.Fprintln(r.out, st.Bold(fmt.Sprintf("Iteration %d", i)))
		fmt.Fprintf(r.out, "%s\n\n", st.Dim(tui.Rule(tui.BoxDouble, bannerWidth)))

		res, text, err := r.iterate(ctx, u, i)
		if ctx.Err() != nil {
			return u.cancelled()
		}
		if err != nil {
			fmt.Fprintf(r.errOut, "\n❌ %v\n", err)
			u.persist(u.done, state.StatusError)
			u.notify(ctx, "Ralph Error", fmt.Sprintf("Agent failed to run after %d iterations: %v", u.done, err), notify.PriorityHigh)
			return u.finish(ReasonError, u.done, 1, err)
		}

		u.done = i
		u.persist(i, state.StatusRunning)

		if res.ExitCode != 0 {
			code := res.ExitCode
			if code < 0 {
				code = 1
			}
			fmt.Fprintf(r.errOut, "\n%s\n", st.Red(fmt.Sprintf("❌ Agent exited with code %d", res.ExitCode)))
			u.persist(i, state.StatusError)
			u.notify(ctx, "Ralph Error", fmt.Sprintf("Agent exited with code %d after %d iterations", res.ExitCode, i), notify.PriorityHigh)
			return u.finish(ReasonError, i, code, fmt.Errorf("agent exited with code %d", res.ExitCode))
		}

		if r.complete(ctx, u, text) {
			fmt.Fprintf(r.out, "\n%s\n", st.Green("✅ All tasks complete!"))
			u.persist(i, state.StatusCompleted)
			r.runHook(ctx, u, prompt.HookOnComplete)
			u.notify(ctx, "Ralph Complete", fmt.Sprintf("%s complete after %d iterations", unit.Label(), i), notify.PriorityDefault)
			return u.finish(ReasonCompleted, i, 0, nil)
		}

		if stuck(text) {
			fmt.Fprintf(r.out, "\n%s\n", st.Red("🛑 Agent is stuck"))
			u.persist(i, state.StatusStuck)
			u.notify(ctx, "Ralph Stuck", fmt.Sprintf("Exhausted options after %d iterations", i), notify.PriorityHigh)
			return u.finish(ReasonStuck, i, ReasonStuck.ExitCode(), nil)
		}

		fmt.Fprintf(r.out, "\n%s\n\n", st.Green(fmt.Sprintf("%s Iteration %d complete", tui.CheckMarker, i)))
		r.runHook(ctx, u, prompt.HookOnIteration)
	}

	if ctx.Err() != nil {
		return u.cancelled()
	}
	fmt.Fprintf(r.out, "\n%s\n", st.Yellow(fmt.Sprintf("⚠️  Max iterations (%d) reached", limit)))
	u.persist(u.done, state.StatusMaxIterationsReached)
	u.notify(ctx, "Ralph Max Iterations", fmt.Sprintf("Reached %d iterations", limit), notify.PriorityDefault)
	return u.finish(ReasonMaxIterations, u.done, ReasonMaxIterations.ExitCode(), nil)
}

// iterate runs one agent invocation, rendering its output and appending the
// raw stream to the unit's transcript. It returns the accumulated assistant
// text.
func (r *Runner) iterate(ctx context.Context, u *unitRun, i int) (*executor.ExecResult, string, error) {
	ctx, span := r.opts.Tracer.Start(ctx, "ralph.iteration", trace.WithAttributes(attribute.Int("ralph.iteration", i)))
	defer span.End()

	header := fmt.Sprintf("=== iteration %d %s ===\n", i, time.Now().UTC().Format(time.RFC3339))
	if err := r.opts.Store.AppendLog(u.unit.Feature, header); err != nil {
		logging.Warn("failed to write transcript", "error", err)
	}

	var raw strings.Builder
	parser := r.newParser(span)
	res, err := u.exec.Execute(ctx, u.unit.Prompt,
		func(chunk string) {
			raw.WriteString(chunk)
			io.WriteString(r.out, parser.Parse(chunk))
		},
		func(chunk string) {
			io.WriteString(r.errOut, chunk)
		},
		executor.ExecuteOptions{Model: u.unit.Model},
	)
	io.WriteString(r.out, parser.Flush())

	if err := r.opts.Store.AppendLog(u.unit.Feature, raw.String()); err != nil {
		logging.Warn("failed to write transcript", "error", err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "agent failed to run")
		return nil, parser.AssistantText(), err
	}
	span.SetAttributes(attribute.Int("ralph.exit_code", res.ExitCode))
	return res, parser.AssistantText(), nil
}

func (r *Runner) newParser(span trace.Span) *stream.Parser {
	return stream.NewParser(
		stream.WithColor(r.opts.Color),
		stream.WithMaxLines(r.opts.MaxLines),
		stream.WithEventHandler(func(ev stream.Event) {
			if inv, ok := ev.(stream.ToolInvocation); ok {
				span.AddEvent("tool", trace.WithAttributes(
					attribute.String("tool.name", inv.Name),
					attribute.String("tool.input", inv.InputSummary),
				))
			}
		}),
	)
}

// complete reports whether the unit's TaskFile has no open tasks. Only when
// no TaskFile can be read does the completion marker count.
func (r *Runner) complete(ctx context.Context, u *unitRun, text string) bool {
	data, err := u.exec.ReadFile(ctx, u.unit.TasksPath())
	if err != nil {
		logging.Debug("task file not readable", "path", u.unit.TasksPath(), "error", err)
	}
	if data != nil {
		tf, err := state.ParseTaskFile(data)
		if err == nil {
			return state.Complete(tf)
		}
		logging.Debug("malformed task file", "path", u.unit.TasksPath(), "error", err)
	}
	return strings.Contains(text, CompleteMarker)
}

func stuck(text string) bool {
	return strings.Contains(text, StuckMarker) || strings.Contains(text, legacyStuckMarker)
}

func (r *Runner) runHook(ctx context.Context, u *unitRun, hook prompt.Hook) {
	var enabled bool
	var model string
	switch hook {
	case prompt.HookOnIteration:
		enabled, model = r.opts.Hooks.OnIteration, r.opts.HookModels.OnIteration
	case prompt.HookOnComplete:
		enabled, model = r.opts.Hooks.OnComplete, r.opts.HookModels.OnComplete
	}
	if !enabled || ctx.Err() != nil {
		return
	}

	p, ok, err := r.opts.Prompts.Hook(hook, u.unit.Feature)
	if err != nil {
		logging.Warn("failed to load hook prompt", "hook", hook, "error", err)
		return
	}
	if !ok {
		logging.Debug("hook has no prompt file", "hook", hook)
		return
	}

	ctx, span := r.opts.Tracer.Start(ctx, "ralph.hook", trace.WithAttributes(attribute.String("ralph.hook", string(hook))))
	defer span.End()

	fmt.Fprintf(r.out, "%s\n\n", u.style.Dim(fmt.Sprintf("Running %s hook", hook)))
	parser := r.newParser(span)
	res, err := u.exec.Execute(ctx, p,
		func(chunk string) { io.WriteString(r.out, parser.Parse(chunk)) },
		func(chunk string) { io.WriteString(r.errOut, chunk) },
		executor.ExecuteOptions{Model: model},
	)
	io.WriteString(r.out, parser.Flush())

	switch {
	case err != nil:
		logging.Warn("hook failed to run", "hook", hook, "error", err)
	case res.ExitCode != 0:
		logging.Warn("hook exited with non-zero code", "hook", hook, "code", res.ExitCode)
	}
}

// RunOnce runs a single agent invocation for unit. It touches no run state,
// queue or hooks, and its exit code is the agent's.
func (r *Runner) RunOnce(ctx context.Context, unit Unit) Result {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := r.opts.Tracer.Start(ctx, "ralph.once", trace.WithAttributes(attribute.String("ralph.unit", unit.Name())))
	defer span.End()

	fmt.Fprintf(r.out, "🔄 Ralph %s (single iteration)\n\n", unit.Label())

	u := &unitRun{r: r, unit: unit, span: span, style: tui.NewStyle(r.opts.Color), cleanCtx: context.WithoutCancel(ctx)}
	exec, err := r.opts.NewExecutor(ctx, unit)
	if err != nil {
		fmt.Fprintf(r.errOut, "❌ %v\n", err)
		return u.finish(ReasonError, 0, 1, err)
	}
	u.exec = exec
	defer u.cleanup()

	if err := exec.Initialize(ctx); err != nil {
		fmt.Fprintf(r.errOut, "❌ failed to initialize executor: %v\n", err)
		return u.finish(ReasonError, 0, 1, err)
	}

	parser := r.newParser(span)
	res, err := exec.Execute(ctx, unit.Prompt,
		func(chunk string) { io.WriteString(r.out, parser.Parse(chunk)) },
		func(chunk string) { io.WriteString(r.errOut, chunk) },
		executor.ExecuteOptions{Model: unit.Model},
	)
	io.WriteString(r.out, parser.Flush())

	switch {
	case ctx.Err() != nil:
		return u.finish(ReasonCancelled, 1, ReasonCancelled.ExitCode(), context.Canceled)
	case err != nil:
		fmt.Fprintf(r.errOut, "❌ %v\n", err)
		return u.finish(ReasonError, 0, 1, err)
	case res.ExitCode != 0:
		code := res.ExitCode
		if code < 0 {
			code = 1
		}
		return u.finish(ReasonError, 1, code, fmt.Errorf("agent exited with code %d", res.ExitCode))
	}
	return u.finish(ReasonCompleted, 1, 0, nil)
}
