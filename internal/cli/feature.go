package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/prompt"
	"github.com/thruflo/ralph/internal/runner"
	"github.com/thruflo/ralph/internal/state"
	"github.com/thruflo/ralph/internal/tui"
)

var (
	featureFlags runFlags
	featureFirst bool
)

var featureCmd = &cobra.Command{
	Use:   "feature <name>",
	Short: "Work through a feature's task list",
	Long: `Runs the agent against .ralph/features/<name>/tasks.json.

When another run is in progress the feature is queued instead, and starts
automatically once the current unit of work completes.

Example:
  ralph feature search
  ralph feature --first --once`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFeature,
}

func init() {
	featureFlags.register(featureCmd)
	featureCmd.Flags().BoolVar(&featureFirst, "first", false, "use the most recently modified feature")
	rootCmd.AddCommand(featureCmd)
}

func runFeature(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p, err := loadProject()
	if err != nil {
		return err
	}
	f := featureFlags
	st := tui.NewStyle(colorEnabled(out))

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	if featureFirst {
		recent, err := p.store.MostRecentFeature()
		if err != nil {
			return err
		}
		if recent == "" {
			return fmt.Errorf("no features found")
		}
		name = recent
		fmt.Fprintf(out, "%s %s\n", st.Cyan("Using most recent feature:"), name)
	}
	if name == "" {
		return missingFeatureError(p.store, "usage: ralph feature <name>")
	}
	if err := state.ValidateFeatureName(name); err != nil {
		return err
	}

	if !f.force {
		if err := checkCleanTree(commandContext(cmd), p.dir); err != nil {
			return err
		}
	}
	if !p.store.FeatureExists(name) {
		return missingFeatureError(p.store, fmt.Sprintf("feature '%s' not found", name))
	}

	if running, _ := p.store.Running(); running {
		pos, err := p.store.AddToQueue(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Queued '%s' (position %d)\n", name, pos)
		fmt.Fprintln(out, st.Dim("Will run automatically when the current run completes"))
		return nil
	}

	if err := p.store.EnsureProgressFile(name); err != nil {
		return err
	}
	prompts := prompt.New(p.dir)
	render := prompts.Feature
	if f.once {
		render = prompts.Oneshot
	}
	text, err := render(name)
	if err != nil {
		return err
	}
	return runUnit(cmd, p, f, runner.Unit{
		Feature: name,
		Prompt:  text,
		Model:   firstNonEmpty(f.model, p.cfg.Models.Feature),
	})
}

// missingFeatureError appends the available features to msg.
func missingFeatureError(store *state.Store, msg string) error {
	features, err := store.ListFeatures()
	if err != nil || len(features) == 0 {
		return fmt.Errorf("%s (no features found under %s)", msg, state.FeaturesDir)
	}
	return fmt.Errorf("%s (available features: %s)", msg, strings.Join(features, ", "))
}
