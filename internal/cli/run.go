package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/notify"
	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/services"
	"github.com/thruflo/ralph/internal/sprite"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

// runFlags are shared by the commands that start a run.
type runFlags struct {
	once          bool
	resume        bool
	maxIterations int
	hooks         bool
	force         bool
	sandbox       bool
	repo          string
	branch        string
	model         string
}

func (f *runFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.once, "once", false, "run a single iteration and exit")
	flags.BoolVar(&f.resume, "resume", false, "continue from the saved iteration")
	flags.IntVar(&f.maxIterations, "max-iterations", 0, "override the iteration budget")
	flags.BoolVar(&f.hooks, "hooks", false, "enable the on-iteration and on-complete hooks")
	flags.BoolVar(&f.force, "force", false, "run even with uncommitted changes")
	flags.BoolVar(&f.sandbox, "sandbox", false, "run the agent in a remote sprite")
	flags.StringVar(&f.repo, "repo", "", "repository URL cloned into the sandbox")
	flags.StringVar(&f.branch, "branch", "", "branch cloned into the sandbox")
	flags.StringVar(&f.model, "model", "", "agent model")
}

// Seams replaced in tests.
var (
	newExecutorFactory = executorFactory
	newSpriteClient    = func(token string) sprite.Client { return sprite.NewSDKClient(token) }
	gitOutput          = runGit
)

// executorFactory chooses the backend for every unit of the run.
func executorFactory(ctx context.Context, p *project, f runFlags) (runner.ExecutorFactory, error) {
	if !f.sandbox {
		svcs, err := services.FromConfig(p.cfg.Services)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, unit runner.Unit) (executor.Executor, error) {
			return executor.NewLocal(executor.LocalOptions{
				WorkDir:    p.dir,
				Binary:     p.cfg.Agent.Binary,
				Services:   svcs,
				MCPServers: p.cfg.MCP.Servers,
				LogsDir:    p.store.Path(state.LogsDir),
				UsePTY:     true,
			}), nil
		}, nil
	}

	token := config.Env(p.env, config.EnvSpriteToken)
	if token == "" {
		return nil, fmt.Errorf("%s is required for sandbox runs (set it in the environment or .ralph/.env)", config.EnvSpriteToken)
	}
	repo := firstNonEmpty(f.repo, p.cfg.Sandbox.RepoURL)
	if repo == "" {
		out, err := gitOutput(ctx, p.dir, "remote", "get-url", "origin")
		if err != nil {
			return nil, fmt.Errorf("no repository URL: pass --repo or set sandbox.repo_url: %w", err)
		}
		repo = strings.TrimSpace(out)
	}
	opts := executor.SandboxOptions{
		RepoURL:    repo,
		Branch:     firstNonEmpty(f.branch, p.cfg.Sandbox.Branch),
		Checkpoint: p.cfg.Sandbox.Checkpoint,
		Setup:      p.cfg.Sandbox.Setup,
		Binary:     p.cfg.Agent.Binary,
		Env: map[string]string{
			config.EnvAnthropicAPIKey: config.Env(p.env, config.EnvAnthropicAPIKey),
			config.EnvGitHubToken:     config.Env(p.env, config.EnvGitHubToken),
		},
	}
	client := newSpriteClient(token)
	return func(ctx context.Context, unit runner.Unit) (executor.Executor, error) {
		return executor.NewSandbox(client, opts), nil
	}, nil
}

func buildNotifier(p *project, errOut io.Writer) notify.Notifier {
	notifiers := notify.Multi{notify.Bell{Out: errOut}}
	if url := firstNonEmpty(config.Env(p.env, config.EnvNtfyURL), p.cfg.Notify.NtfyURL); url != "" {
		notifiers = append(notifiers, notify.NewNtfy(url))
	}
	if p.cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktop())
	}
	return notifiers
}

func newRunner(cmd *cobra.Command, p *project, f runFlags, factory runner.ExecutorFactory) *runner.Runner {
	out := cmd.OutOrStdout()
	return runner.New(runner.Options{
		Store:         p.store,
		NewExecutor:   factory,
		Prompts:       prompt.New(p.dir),
		Notifier:      buildNotifier(p, cmd.ErrOrStderr()),
		Out:           out,
		ErrOut:        cmd.ErrOrStderr(),
		Color:         colorEnabled(out),
		MaxIterations: f.maxIterations,
		Resume:        f.resume,
		Hooks: runner.Hooks{
			OnIteration: f.hooks || p.cfg.Hooks.OnIteration,
			OnComplete:  f.hooks || p.cfg.Hooks.OnComplete,
		},
		HookModels: runner.HookModels{
			OnIteration: p.cfg.Models.OnIteration,
			OnComplete:  p.cfg.Models.OnComplete,
		},
		FeatureModel: firstNonEmpty(f.model, p.cfg.Models.Feature),
	})
}

// runUnit runs unit to a terminal state and converts the result into the
// command's error.
func runUnit(cmd *cobra.Command, p *project, f runFlags, unit runner.Unit) error {
	ctx := commandContext(cmd)
	factory, err := newExecutorFactory(ctx, p, f)
	if err != nil {
		return err
	}
	r := newRunner(cmd, p, f, factory)

	var res runner.Result
	if f.once {
		res = r.RunOnce(ctx, unit)
	} else {
		res = r.Run(ctx, unit)
	}
	logging.Debug("run finished", "unit", res.Unit, "reason", res.Reason, "iterations", res.Iterations, "code", res.ExitCode)
	return resultError(res)
}

func resultError(res runner.Result) error {
	if res.ExitCode == 0 {
		return nil
	}
	return &ExitError{Code: res.ExitCode}
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && tui.ColorEnabled(f)
}

// checkCleanTree fails when the project has uncommitted changes. Outside a
// git repository there is nothing to check.
func checkCleanTree(ctx context.Context, dir string) error {
	out, err := gitOutput(ctx, dir, "status", "--porcelain")
	if err != nil {
		logging.Debug("skipping clean tree check", "error", err)
		return nil
	}
	if strings.TrimSpace(out) != "" {
		return fmt.Errorf("you have uncommitted changes in your working directory; commit or stash them first, or use --force to run anyway")
	}
	return nil
}

// ensureNotRunning fails when a live runner holds the lock.
func ensureNotRunning(store *state.Store) error {
	if running, lock := store.Running(); running {
		return fmt.Errorf("%w (pid %d, unit %q)", state.ErrLocked, lock.PID, lock.Unit)
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
