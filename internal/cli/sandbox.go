package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/sprite"
)

const (
	defaultPruneAge = time.Hour
	deleteTimeout   = 30 * time.Second
)

var (
	pruneMaxAge time.Duration
	pruneForce  bool
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Manage remote sandboxes",
}

var sandboxPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ralph sprites left behind by interrupted runs",
	Long: `Lists sprites named with the ralph- prefix that are older than --max-age.
Nothing is deleted unless --force is given.

Example:
  ralph sandbox prune
  ralph sandbox prune --force --max-age 30m`,
	Args: cobra.NoArgs,
	RunE: runSandboxPrune,
}

func init() {
	sandboxPruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", defaultPruneAge, "only consider sprites older than this")
	sandboxPruneCmd.Flags().BoolVar(&pruneForce, "force", false, "delete the sprites (default is a dry run)")
	sandboxCmd.AddCommand(sandboxPruneCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func runSandboxPrune(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	p, err := loadProject()
	if err != nil {
		return err
	}
	token := config.Env(p.env, config.EnvSpriteToken)
	if token == "" {
		return fmt.Errorf("%s is required (set it in the environment or .ralph/.env)", config.EnvSpriteToken)
	}
	client := newSpriteClient(token)

	ctx, cancel := context.WithTimeout(commandContext(cmd), 2*time.Minute)
	defer cancel()

	all, err := client.List(ctx, sprite.NamePrefix)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-pruneMaxAge)
	var stale []sprite.Info
	for _, s := range all {
		if s.CreatedAt.Before(cutoff) {
			stale = append(stale, s)
		}
	}

	if len(stale) == 0 {
		fmt.Fprintf(out, "No sprites matching %q older than %v\n", sprite.NamePrefix, pruneMaxAge)
		return nil
	}

	fmt.Fprintf(out, "Found %d sprite(s) matching %q older than %v:\n\n", len(stale), sprite.NamePrefix, pruneMaxAge)
	for _, s := range stale {
		fmt.Fprintf(out, "  %s (created %v ago)\n", s.Name, time.Since(s.CreatedAt).Round(time.Second))
	}
	fmt.Fprintln(out)

	if !pruneForce {
		fmt.Fprintln(out, "Dry run - no sprites deleted. Use --force to delete.")
		return nil
	}

	fmt.Fprintln(out, "Deleting sprites...")
	var failures []string
	deleted := 0
	for _, s := range stale {
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		err := client.Delete(dctx, s.Name)
		dcancel()
		if err != nil {
			failures = append(failures, fmt.Sprintf("  %s: %v", s.Name, err))
			continue
		}
		fmt.Fprintf(out, "  Deleted %s\n", s.Name)
		deleted++
	}
	fmt.Fprintf(out, "\nDeleted %d/%d sprites\n", deleted, len(stale))

	if len(failures) > 0 {
		return fmt.Errorf("failed to delete some sprites:\n%s", strings.Join(failures, "\n"))
	}
	return nil
}
