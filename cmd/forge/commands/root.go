package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/engine"
)

var (
	// Global flags
	workspaceRoot string
	recipesDir    string
	jsonOutput    bool
	metricsAddr   string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "forge",
		Short: "RecipeForge - Recipe Application Engine",
		Long: `RecipeForge applies versioned automation recipes across a workspace.

Features:
  - Declarative recipes with per-ecosystem content variants
  - Workspace analysis with project and ecosystem detection
  - Fact-based dependency resolution between recipes
  - Idempotent application with durable workspace state
  - Per-target isolation and run history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&workspaceRoot, "workspace", "w", ".", "workspace root directory")
	rootCmd.PersistentFlags().StringVarP(&recipesDir, "recipes", "r", "recipes", "recipe collection directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (empty disables)")

	// Add subcommands
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newRecipesCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStateCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}

// resolveWorkspaceRoot turns the --workspace flag into an absolute path.
func resolveWorkspaceRoot() (string, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace root %s: %w", workspaceRoot, err)
	}
	return abs, nil
}

// Exit codes per run-level failure, so callers can script against the
// outcome without parsing messages.
var exitCodes = map[engine.ErrorCode]int{
	engine.CodeRecipeInvalid:              2,
	engine.CodeAnalysisFailed:             3,
	engine.CodeStateReadFailed:            4,
	engine.CodeDependenciesNotSatisfied:   5,
	engine.CodeUserCancelledReapplication: 6,
	engine.CodeNoApplicableProjects:       7,
	engine.CodeNoApplicableScope:          8,
	engine.CodeInvalidProjectPath:         9,
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var engineErr *engine.EngineError
	if errors.As(err, &engineErr) {
		if code, ok := exitCodes[engineErr.Code]; ok {
			return code
		}
	}
	return 1
}
