package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)

	rs, err := store.LoadRunState()
	if err != nil {
		return err
	}
	if rs == nil {
		fmt.Fprintln(out, "No Ralph state found. Run 'ralph setup' first.")
		return nil
	}

	st := tui.NewStyle(colorEnabled(out))
	status := string(rs.Status)
	fmt.Fprintf(out, "📊 Ralph Status\n\n")
	fmt.Fprintf(out, "Status: %s\n", st.Wrap(tui.StatusIcon(status)+" "+status, tui.StatusColor(status)))
	fmt.Fprintf(out, "Iteration: %d / %d\n", rs.Iteration, rs.MaxIterations)
	if rs.Feature != "" {
		fmt.Fprintf(out, "Feature: %s\n", rs.Feature)
	}
	if !rs.StartedAt.IsZero() {
		fmt.Fprintf(out, "Started: %s\n", rs.StartedAt.Format(time.RFC3339))
	}

	switch running, lock := store.Running(); {
	case running:
		fmt.Fprintf(out, "Runner: pid %d on %s since %s\n", lock.PID, lock.Unit, lock.AcquiredAt.Format(time.RFC3339))
	case lock != nil:
		fmt.Fprintf(out, "Runner: %s\n", st.Yellow(fmt.Sprintf("stale lock from pid %d", lock.PID)))
	}

	if tf, err := store.LoadTaskFile(state.BacklogPath); err == nil && tf != nil {
		done, total := tf.Counts()
		fmt.Fprintf(out, "\nBacklog: %d/%d tasks complete\n", done, total)
	}

	features, err := store.ListFeatures()
	if err != nil {
		return err
	}
	if len(features) > 0 {
		fmt.Fprintln(out, "\nFeatures:")
		for _, name := range features {
			tf, err := store.LoadTaskFile(state.FeatureTasksPath(name))
			if err != nil || tf == nil {
				continue
			}
			done, total := tf.Counts()
			fmt.Fprintf(out, "  %s %d/%d\n", tui.PadOrTruncate(name, 24), done, total)
		}
	}

	q, err := store.LoadQueue()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nQueue: %d pending\n", len(q.Items))
	return nil
}
