package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/state"
)

var backlogFlags runFlags

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Work through the shared backlog",
	Long: `Runs the agent against .ralph/backlog.json until every task passes,
the agent reports it is stuck, or the iteration budget runs out.

Example:
  ralph backlog --once
  ralph backlog --resume
  ralph backlog --sandbox --repo https://github.com/acme/app`,
	Args: cobra.NoArgs,
	RunE: runBacklog,
}

func init() {
	backlogFlags.register(backlogCmd)
	rootCmd.AddCommand(backlogCmd)
}

func runBacklog(cmd *cobra.Command, args []string) error {
	p, err := loadProject()
	if err != nil {
		return err
	}
	f := backlogFlags

	if !f.force {
		if err := checkCleanTree(commandContext(cmd), p.dir); err != nil {
			return err
		}
	}

	tf, err := p.store.LoadTaskFile(state.BacklogPath)
	if err != nil {
		return err
	}
	if tf == nil {
		return fmt.Errorf("no backlog found, run 'ralph setup' first")
	}
	if err := ensureNotRunning(p.store); err != nil {
		return err
	}
	if err := p.store.EnsureProgressFile(""); err != nil {
		return err
	}

	text, err := prompt.New(p.dir).Backlog()
	if err != nil {
		return err
	}
	return runUnit(cmd, p, f, runner.Unit{
		Prompt: text,
		Model:  firstNonEmpty(f.model, p.cfg.Models.Backlog),
	})
}
