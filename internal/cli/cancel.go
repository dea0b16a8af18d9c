package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/state"
)

var signalProcess = func(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Stop the current run",
	Long: `Sends SIGTERM to the runner holding the lock. The runner records the
run as cancelled and cleans up its executor. When no live runner exists but
the state still says running, the state is marked cancelled.

Resume with: ralph backlog --resume`,
	Args: cobra.NoArgs,
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)

	fmt.Fprintf(out, "🛑 Ralph Cancel\n\n")

	rs, err := store.LoadRunState()
	if err != nil {
		return err
	}
	if rs == nil {
		fmt.Fprintln(out, "⚠️  No Ralph state found")
		return nil
	}
	fmt.Fprintf(out, "Current: %s, iteration %d/%d\n\n", rs.Status, rs.Iteration, rs.MaxIterations)

	if running, lock := store.Running(); running {
		if err := signalProcess(lock.PID); err != nil {
			return fmt.Errorf("failed to signal runner (pid %d): %w", lock.PID, err)
		}
		fmt.Fprintf(out, "✓ Sent SIGTERM to ralph (pid %d)\n", lock.PID)
		return nil
	}

	if rs.Status != state.StatusRunning {
		fmt.Fprintln(out, "⚠️  Ralph is not running")
		return nil
	}

	rs.Status = state.StatusCancelled
	if err := store.SaveRunState(rs); err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Ralph cancelled")
	fmt.Fprintln(out, "\nTo resume: ralph backlog --resume")
	return nil
}
