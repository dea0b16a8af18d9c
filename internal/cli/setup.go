package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/executor"
	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/state"
)

var (
	setupMaxIterations int
	setupForce         bool
)

// gitignoreEntries are the runtime files that should never be committed.
var gitignoreEntries = []string{
	filepath.ToSlash(state.StatePath),
	filepath.ToSlash(state.QueuePath),
	filepath.ToSlash(state.LockPath),
	filepath.ToSlash(state.LogsDir) + "/",
	filepath.ToSlash(executor.MCPConfigPath),
	filepath.ToSlash(filepath.Join(state.Dir, ".env")),
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initialize .ralph/ in the current project",
	Long: `Creates the .ralph/ directory with:
  - config.yaml with the iteration budget
  - state.json, backlog.json, queue.json and progress.txt
  - prompts/ with the default agent prompts

Existing files are kept unless --force is given. Runtime files are added to
.gitignore.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().IntVar(&setupMaxIterations, "max-iterations", 0, "iteration budget (default from config, 50)")
	setupCmd.Flags().BoolVarP(&setupForce, "force", "f", false, "overwrite config, state and prompts")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir, err := baseDir()
	if err != nil {
		return err
	}
	store := state.NewStore(dir)

	if setupMaxIterations < 0 {
		return fmt.Errorf("--max-iterations must be positive")
	}

	fmt.Fprintf(out, "🔧 Ralph Setup\n\n")

	for _, rel := range []string{state.FeaturesDir, state.LogsDir} {
		if err := os.MkdirAll(store.Path(rel), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", rel, err)
		}
	}

	written, err := prompt.WriteDefaults(dir, setupForce)
	if err != nil {
		return err
	}
	if len(written) > 0 {
		fmt.Fprintf(out, "📝 Wrote %d prompt files to %s\n", len(written), filepath.ToSlash(prompt.Dir))
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if _, err := os.Stat(config.Path(dir)); os.IsNotExist(err) || setupForce {
		if setupMaxIterations > 0 {
			cfg.Limits.MaxIterations = setupMaxIterations
		}
		if err := config.Save(dir, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "📝 Created %s\n", filepath.ToSlash(filepath.Join(config.Dir, "config.yaml")))
	}

	backlog, err := store.LoadTaskFile(state.BacklogPath)
	if err != nil {
		return err
	}
	if backlog == nil {
		backlog = &state.TaskFile{Tasks: []state.Task{{
			Title:       "Example task - replace with your own",
			Description: "Why we need this and enough context to start.",
			Acceptance:  []string{"Specific, testable criteria"},
			Branch:      "feature/example",
		}}}
		if err := store.SaveTaskFile(state.BacklogPath, backlog); err != nil {
			return err
		}
		fmt.Fprintf(out, "📝 Created %s\n", filepath.ToSlash(state.BacklogPath))
		fmt.Fprintf(out, "⚠️  Edit it to add your tasks before running Ralph\n\n")
	}
	done, total := backlog.Counts()
	fmt.Fprintf(out, "✓ Backlog: %d tasks, %d incomplete\n", total, total-done)

	if err := store.EnsureProgressFile(""); err != nil {
		return err
	}

	if _, err := os.Stat(store.Path(state.QueuePath)); os.IsNotExist(err) {
		if err := store.SaveQueue(&state.QueueFile{Items: []string{}}); err != nil {
			return err
		}
	}

	rs, err := store.LoadRunState()
	if err != nil && !setupForce {
		return err
	}
	if rs == nil || setupForce {
		budget := cfg.Limits.MaxIterations
		if setupMaxIterations > 0 {
			budget = setupMaxIterations
		}
		if err := store.SaveRunState(&state.RunState{
			MaxIterations: budget,
			Status:        state.StatusInitialized,
			StartedAt:     time.Now().UTC(),
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ State initialized (max %d iterations)\n", budget)
	}

	added, err := ensureGitignore(filepath.Join(dir, ".gitignore"), gitignoreEntries)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		fmt.Fprintf(out, "✓ Added to .gitignore: %s\n", strings.Join(added, ", "))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✅ Ralph is ready!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  ralph backlog --once  - Test single backlog iteration")
	fmt.Fprintln(out, "  ralph backlog         - Run backlog loop")
	fmt.Fprintln(out, "  ralph feature <name>  - Run a feature plan")
	return nil
}

// ensureGitignore appends the entries missing from the file at path and
// returns them.
func ensureGitignore(path string, entries []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		present[strings.TrimSpace(line)] = true
	}
	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	content := strings.TrimRight(string(data), "\n")
	if content != "" {
		content += "\n"
	}
	content += strings.Join(missing, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write .gitignore: %w", err)
	}
	return missing, nil
}
