package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

// Single agent sessions over a feature or the backlog. They share one flag
// set and never touch the run state.
var (
	sessionFlags runFlags
	promptFirst  bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt <prompt-name> [feature]",
	Short: "Run a named prompt against a feature",
	Long: `Runs .ralph/prompts/<prompt-name>.md once against a feature, prefixed with
the feature's files, its task summary and its recent git activity. The
model comes from --model or models.<prompt-name> in the config.

Example:
  ralph prompt review search
  ralph prompt report --first`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPrompt,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <backlog|feature> [feature-name]",
	Short: "Bring open tasks up to date with the codebase",
	Long: `Asks the agent to review the open tasks of the backlog or a feature and
update, complete or remove them. Without a feature name the most recently
modified feature is used.

Example:
  ralph refresh backlog
  ralph refresh feature search`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: []string{"backlog", "feature"},
	RunE:      runRefresh,
}

var reportCmd = &cobra.Command{
	Use:   "report <name>",
	Short: "Review a feature's progress",
	Long: `Runs the report prompt against a feature: what is done, what remains and
what looks wrong.

Example:
  ralph report search`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	for _, cmd := range []*cobra.Command{promptCmd, refreshCmd, reportCmd} {
		sessionFlags.registerSession(cmd)
		rootCmd.AddCommand(cmd)
	}
	promptCmd.Flags().BoolVar(&promptFirst, "first", false, "use the most recently modified feature")
}

func (f *runFlags) registerSession(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&f.sandbox, "sandbox", false, "run the agent in a remote sprite")
	flags.StringVar(&f.repo, "repo", "", "repository URL cloned into the sandbox")
	flags.StringVar(&f.branch, "branch", "", "branch cloned into the sandbox")
	flags.StringVar(&f.model, "model", "", "agent model")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	name := args[0]
	var feature string
	if len(args) == 2 {
		feature = args[1]
	}
	feature, err = resolveFeature(cmd.OutOrStdout(), p.store, feature, promptFirst, fmt.Sprintf("usage: ralph prompt %s <feature>", name))
	if err != nil {
		return err
	}

	text, err := prompt.New(p.dir).Named(name, feature, reviewOf(commandContext(cmd), p, feature))
	if err != nil {
		return err
	}
	return runSession(cmd, p, fmt.Sprintf("Running %s for: %s", name, feature), runner.Unit{
		Feature: feature,
		Prompt:  text,
		Model:   firstNonEmpty(sessionFlags.model, p.cfg.Models.ForPrompt(name)),
	})
}

func runRefresh(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}

	var feature string
	switch args[0] {
	case "backlog":
		if len(args) > 1 {
			return fmt.Errorf("usage: ralph refresh backlog")
		}
		tf, err := p.store.LoadTaskFile(state.BacklogPath)
		if err != nil {
			return err
		}
		if tf == nil {
			return fmt.Errorf("no backlog found, run 'ralph setup' first")
		}
	case "feature":
		if len(args) == 2 {
			feature = args[1]
		}
		feature, err = resolveFeature(cmd.OutOrStdout(), p.store, feature, feature == "", "usage: ralph refresh feature <name>")
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("usage: ralph refresh <backlog|feature> [feature-name]")
	}

	text, err := prompt.New(p.dir).Refresh(feature)
	if err != nil {
		return err
	}
	unit := runner.Unit{Feature: feature, Prompt: text, Model: firstNonEmpty(sessionFlags.model, p.cfg.Models.ForPrompt("refresh"))}
	return runSession(cmd, p, fmt.Sprintf("Refreshing %s: %s", args[0], unit.Name()), unit)
}

func runReport(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	var feature string
	if len(args) == 1 {
		feature = args[0]
	}
	feature, err = resolveFeature(cmd.OutOrStdout(), p.store, feature, false, "usage: ralph report <name>")
	if err != nil {
		return err
	}

	text, err := prompt.New(p.dir).Named("report", feature, reviewOf(commandContext(cmd), p, feature))
	if err != nil {
		return err
	}
	return runSession(cmd, p, "Starting review of: "+feature, runner.Unit{
		Feature: feature,
		Prompt:  text,
		Model:   firstNonEmpty(sessionFlags.model, p.cfg.Models.ForPrompt("report")),
	})
}

// resolveFeature checks that name is an existing feature. With recent set it
// uses the most recently modified feature instead.
func resolveFeature(out io.Writer, store *state.Store, name string, recent bool, usage string) (string, error) {
	if recent {
		newest, err := store.MostRecentFeature()
		if err != nil {
			return "", err
		}
		if newest == "" {
			return "", fmt.Errorf("no features found")
		}
		name = newest
		fmt.Fprintf(out, "%s %s\n", tui.NewStyle(colorEnabled(out)).Cyan("Using most recent feature:"), name)
	}
	if name == "" {
		return "", missingFeatureError(store, usage)
	}
	if err := state.ValidateFeatureName(name); err != nil {
		return "", err
	}
	if !store.FeatureExists(name) {
		return "", missingFeatureError(store, fmt.Sprintf("feature '%s' not found", name))
	}
	return name, nil
}

// reviewOf gathers what a review prompt shows about feature. Git failures
// leave the git sections empty.
func reviewOf(ctx context.Context, p *project, feature string) prompt.Review {
	var rv prompt.Review
	tf, err := p.store.LoadTaskFile(state.FeatureTasksPath(feature))
	if err != nil {
		logging.Debug("task file unreadable for review", "feature", feature, "error", err)
	}
	rv.Tasks = tf

	branch := p.store.FeatureBranch(feature)
	if branch == "" {
		return rv
	}
	if out, err := gitOutput(ctx, p.dir, "log", "--oneline", "-10", branch); err == nil {
		rv.GitLog = out
	}
	for _, base := range []string{"main", "master"} {
		if out, err := gitOutput(ctx, p.dir, "diff", base+"..."+branch, "--stat"); err == nil {
			rv.GitDiff = out
			break
		}
	}
	return rv
}

func runSession(cmd *cobra.Command, p *project, banner string, unit runner.Unit) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n", tui.NewStyle(colorEnabled(out)).Cyan(banner))
	f := sessionFlags
	f.once = true
	return runUnit(cmd, p, f, unit)
}
