package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List the features waiting to run",
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Append a feature to the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueAdd,
}

func init() {
	queueCmd.AddCommand(queueAddCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	q, err := state.NewStore(dir).LoadQueue()
	if err != nil {
		return err
	}

	st := tui.NewStyle(colorEnabled(out))
	if len(q.Items) == 0 {
		fmt.Fprintln(out, st.Dim("Queue is empty"))
		return nil
	}
	fmt.Fprintln(out, st.Cyan("Queued features:"))
	for i, name := range q.Items {
		fmt.Fprintf(out, "  %d. %s\n", i+1, name)
	}
	return nil
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := state.ValidateFeatureName(name); err != nil {
		return err
	}
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)
	if !store.FeatureExists(name) {
		return missingFeatureError(store, fmt.Sprintf("feature '%s' not found", name))
	}
	pos, err := store.AddToQueue(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued '%s' (position %d)\n", name, pos)
	return nil
}
