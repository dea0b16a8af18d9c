package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a feature and its files",
	Long: `Removes .ralph/features/<name>/ after asking for confirmation. A feature
that is running right now cannot be deleted.

Example:
  ralph delete search
  ralph delete search --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "delete without asking")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)

	if len(args) == 0 {
		return missingFeatureError(store, "usage: ralph delete <name> [--force]")
	}
	name := args[0]
	if err := state.ValidateFeatureName(name); err != nil {
		return err
	}
	if !store.FeatureExists(name) {
		return missingFeatureError(store, fmt.Sprintf("feature '%s' not found", name))
	}
	if running, lock := store.Running(); running && lock.Unit == name {
		return fmt.Errorf("feature '%s' is running (pid %d), cancel it first", name, lock.PID)
	}

	if !deleteForce {
		fmt.Fprintf(out, "Delete feature '%s'? [y/N] ", name)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
		default:
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := store.DeleteFeature(name); err != nil {
		return err
	}
	st := tui.NewStyle(colorEnabled(out))
	fmt.Fprintf(out, "%s %s\n", st.Green("Deleted feature:"), name)
	return nil
}
