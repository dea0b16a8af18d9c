package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

const listWidth = 45

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the backlog and every feature with its progress",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

type featureSummary struct {
	name   string
	tasks  []state.Task
	done   int
	total  int
	active bool
}

func runList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)
	st := tui.NewStyle(colorEnabled(out))

	rs, err := store.LoadRunState()
	if err != nil {
		return err
	}
	header(out, st, "Ralph Status")
	if rs == nil {
		fmt.Fprintf(out, "  %s %s\n", tui.PendingMarker, st.Dim("Not initialized (run 'ralph setup')"))
	} else {
		status := string(rs.Status)
		fmt.Fprintf(out, "  %s %s\n", st.Wrap(tui.StatusIcon(status), tui.StatusColor(status)), status)
		if rs.Status == state.StatusRunning && rs.Feature != "" {
			fmt.Fprintf(out, "     %s %s\n", st.Dim("Working on:"), st.Cyan(rs.Feature))
		}
		fmt.Fprintf(out, "     %s %d/%d\n", st.Dim("Iteration:"), rs.Iteration, rs.MaxIterations)
	}

	fmt.Fprintln(out)
	header(out, st, "Backlog Tasks")
	backlog, err := store.LoadTaskFile(state.BacklogPath)
	switch {
	case err != nil:
		fmt.Fprintf(out, "  %s\n", st.Red("Unreadable backlog: "+err.Error()))
	case backlog == nil:
		fmt.Fprintf(out, "  %s\n", st.Dim("No backlog found"))
	default:
		open := backlog.OpenTasks()
		if len(open) == 0 {
			fmt.Fprintf(out, "  %s\n", st.Green("✅ All tasks complete!"))
		}
		for _, t := range open {
			fmt.Fprintf(out, "  %s %s\n", tui.PendingMarker, t.Title)
			if t.Branch != "" {
				fmt.Fprintf(out, "    %s\n", st.Dim("└─ branch: "+t.Branch))
			}
		}
		done, total := backlog.Counts()
		fmt.Fprintf(out, "\n  %s\n", st.Dim(fmt.Sprintf("%d/%d tasks completed", done, total)))
	}

	names, err := store.ListFeatures()
	if err != nil {
		return err
	}
	var active, finished []featureSummary
	for _, name := range names {
		tf, err := store.LoadTaskFile(state.FeatureTasksPath(name))
		if err != nil || tf == nil {
			continue
		}
		done, total := tf.Counts()
		fs := featureSummary{
			name:   name,
			tasks:  tf.Tasks,
			done:   done,
			total:  total,
			active: rs != nil && rs.Status == state.StatusRunning && rs.Feature == name,
		}
		if state.Complete(tf) {
			finished = append(finished, fs)
		} else {
			active = append(active, fs)
		}
	}

	fmt.Fprintln(out)
	header(out, st, "Features (Active)")
	if len(active) == 0 {
		fmt.Fprintf(out, "  %s\n", st.Dim("No active features"))
	}
	for _, f := range active {
		icon := "📋"
		if f.active {
			icon = "🔄"
		}
		fmt.Fprintf(out, "  %s %s  %s\n", icon, st.Bold(f.name), st.Dim(fmt.Sprintf("%d/%d done", f.done, f.total)))
		for _, t := range f.tasks {
			if t.Passes {
				fmt.Fprintf(out, "     %s %s\n", st.Green(tui.CheckMarker), st.Dim(t.Title))
			} else {
				fmt.Fprintf(out, "     %s %s\n", tui.PendingMarker, t.Title)
			}
		}
	}

	fmt.Fprintln(out)
	header(out, st, "Features (Done)")
	if len(finished) == 0 {
		fmt.Fprintf(out, "  %s\n", st.Dim("No completed features"))
	}
	for _, f := range finished {
		fmt.Fprintf(out, "  %s\n", st.Green(fmt.Sprintf("✅ %s  %d/%d", f.name, f.done, f.total)))
	}
	return nil
}

func header(out io.Writer, st tui.Style, title string) {
	width := listWidth
	if f, ok := out.(*os.File); ok {
		width = min(width, tui.Width(f, listWidth))
	}
	for i, line := range tui.Header(title, width) {
		if i == 1 {
			fmt.Fprintln(out, st.Cyan(st.Bold(line)))
			continue
		}
		fmt.Fprintln(out, st.Dim(line))
	}
}
