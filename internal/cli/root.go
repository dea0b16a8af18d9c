// Package cli implements the ralph command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/ralph/internal/config"
	"github.com/thruflo/ralph/internal/logging"
	"github.com/thruflo/ralph/internal/state"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	debugMode  bool
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Run a coding agent in a loop until the task list is done",
	Long: `Ralph runs a coding agent against a project's task list, one iteration
at a time, until every task passes, the agent reports it is stuck, or the
iteration budget runs out. Features queued while a run is in progress start
automatically when it completes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureFromEnv()
		if debugMode {
			logging.SetLevel(logging.LevelDebug)
		}
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("ralph version {{.Version}}\n")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", "", "project root (default: current directory)")
}

// ExitError carries a process exit code out of a command. It is returned
// after the command has already reported the failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// baseDir resolves the project root.
func baseDir() (string, error) {
	if projectDir != "" {
		return filepath.Abs(projectDir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// project is the loaded view of a ralph project.
type project struct {
	dir   string
	store *state.Store
	cfg   *config.Config
	env   map[string]string
}

func loadProject() (*project, error) {
	dir, err := baseDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	env, err := config.LoadEnvFile(dir)
	if err != nil {
		return nil, err
	}
	return &project{dir: dir, store: state.NewStore(dir), cfg: cfg, env: env}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
