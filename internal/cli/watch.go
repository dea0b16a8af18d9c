package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/watch"
)

var watchFlags runFlags

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run automatically when new tasks are added",
	Long: `Watches .ralph/backlog.json and every feature's tasks.json. When a
change adds open tasks, the matching backlog or feature run starts. New
features are picked up by a periodic rescan.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchFlags.hooks, "hooks", false, "enable the on-iteration and on-complete hooks")
	watchCmd.Flags().BoolVar(&watchFlags.sandbox, "sandbox", false, "run the agent in a remote sprite")
	watchCmd.Flags().StringVar(&watchFlags.model, "model", "", "agent model")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	if rs, err := p.store.LoadRunState(); err != nil || rs == nil {
		return fmt.Errorf("no .ralph state found, run 'ralph setup' first")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prompts := prompt.New(p.dir)
	w := &watch.Watcher{
		Store: p.store,
		Out:   cmd.OutOrStdout(),
		OnWork: func(ctx context.Context, feature string) {
			if err := watchRun(ctx, cmd, p, prompts, feature); err != nil {
				logging.Warn("watch run failed", "unit", feature, "error", err)
			}
		},
	}
	return w.Run(ctx)
}

func watchRun(ctx context.Context, cmd *cobra.Command, p *project, prompts *prompt.Set, feature string) error {
	f := watchFlags
	unit := runner.Unit{Feature: feature, Model: firstNonEmpty(f.model, p.cfg.Models.Backlog)}
	var err error
	if feature == "" {
		unit.Prompt, err = prompts.Backlog()
	} else {
		unit.Model = firstNonEmpty(f.model, p.cfg.Models.Feature)
		if err := p.store.EnsureProgressFile(feature); err != nil {
			return err
		}
		unit.Prompt, err = prompts.Feature(feature)
	}
	if err != nil {
		return err
	}

	factory, err := newExecutorFactory(ctx, p, f)
	if err != nil {
		return err
	}
	res := newRunner(cmd, p, f, factory).Run(ctx, unit)
	fmt.Fprintf(cmd.OutOrStdout(), "Run finished: %s after %d iterations\n", res.Reason, res.Iterations)
	return nil
}
