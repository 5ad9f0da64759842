package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/engine"
	"github.com/recipeforge/recipeforge/pkg/executor"
	"github.com/recipeforge/recipeforge/pkg/recipe"
	"github.com/recipeforge/recipeforge/pkg/state"
	"github.com/recipeforge/recipeforge/pkg/telemetry"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

func newApplyCommand() *cobra.Command {
	var (
		projectFilter string
		variant       string
		yes           bool
		dryRun        bool
		noHistory     bool
	)

	cmd := &cobra.Command{
		Use:   "apply <recipe-id>",
		Short: "Apply a recipe to the workspace",
		Long: `Apply a recipe to the workspace.

This command:
  - Loads the recipe and validates its structure
  - Analyzes the workspace (reusing a prior analysis when present)
  - Checks the recipe's dependencies against recorded facts
  - Resolves the application targets from the recipe level
  - Executes each target sequentially, recording state after each success`,
		Example: `  # Apply a recipe across the workspace
  forge apply add-linting

  # Apply to a single project
  forge apply add-linting --project services/api

  # Re-apply an already applied recipe
  forge apply add-linting --yes

  # Preview targets and content without executing
  forge apply add-linting --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID := args[0]
			root, err := resolveWorkspaceRoot()
			if err != nil {
				return err
			}

			rec, err := recipe.NewLoader(recipesDir).Find(recipeID)
			if err != nil {
				return err
			}

			log.Info().
				Str("recipe", recipeID).
				Str("workspace", root).
				Bool("dry_run", dryRun).
				Msg("Applying recipe")

			exec, err := buildExecutor(dryRun)
			if err != nil {
				return err
			}

			metrics := telemetry.NewMetrics(metricsAddr != "")
			if metricsAddr != "" {
				go metrics.Serve(metricsAddr)
			}

			opts := []engine.Option{engine.WithMetrics(metrics)}

			if !noHistory {
				if history, err := openHistory(cmd.Context(), root); err != nil {
					log.Warn().Err(err).Msg("Run history unavailable, continuing without")
				} else {
					defer history.Close()
					opts = append(opts, engine.WithHistory(history))
				}
			}

			events := make(chan engine.ProgressEvent, 64)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for event := range events {
					printProgress(event)
				}
			}()
			opts = append(opts, engine.WithEvents(events))

			orch := engine.NewOrchestrator(
				workspace.NewAnalyzer(root),
				state.NewStore(root),
				exec,
				opts...,
			)

			report, err := orch.Apply(cmd.Context(), rec, engine.ApplyOptions{
				ProjectFilter: projectFilter,
				Variant:       variant,
				Yes:           yes,
				DryRun:        dryRun,
			})
			close(events)
			<-done
			if err != nil {
				var engineErr *engine.EngineError
				if errors.As(err, &engineErr) && engineErr.Code == engine.CodeUserCancelledReapplication {
					return fmt.Errorf("%w (pass --yes to re-apply)", err)
				}
				return err
			}

			if err := renderReport(report); err != nil {
				return err
			}
			if incomplete := report.Summary.FailedTargets + report.Summary.SkippedTargets; incomplete > 0 {
				return fmt.Errorf("%d of %d target(s) did not complete",
					incomplete, report.Summary.TotalTargets)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectFilter, "project", "p", "", "only target projects matching this relative path")
	cmd.Flags().StringVar(&variant, "variant", "", "content variant to use for every target")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "re-apply even if already applied")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve targets and content without executing or recording state")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "skip run-history recording")

	return cmd
}

func buildExecutor(dryRun bool) (executor.Executor, error) {
	if dryRun {
		return &executor.DryRunExecutor{}, nil
	}
	return executor.NewClaudeExecutor(executor.ClaudeConfig{})
}

func printProgress(event engine.ProgressEvent) {
	switch event.Type {
	case engine.EventTargetStarted:
		fmt.Printf("  ... %s\n", event.Message)
	case engine.EventTargetCompleted:
		fmt.Printf("  ok  %s\n", event.Message)
	case engine.EventTargetFailed:
		fmt.Printf("  err %s\n", event.Message)
		if event.Result != nil && event.Result.Error != "" {
			fmt.Printf("      %s\n", event.Result.Error)
		}
	}
}

func renderReport(report *engine.RunReport) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("\nRun %s (%s)\n", report.RunID, report.RecipeID)
	if report.DependencyCheck != nil {
		fmt.Printf("Dependencies: %s\n", report.DependencyCheck.Describe())
	}
	fmt.Printf("Targets: %d, succeeded: %d, failed: %d",
		report.Summary.TotalTargets,
		report.Summary.SuccessfulTargets,
		report.Summary.FailedTargets)
	if report.Summary.SkippedTargets > 0 {
		fmt.Printf(", skipped: %d", report.Summary.SkippedTargets)
	}
	if report.Summary.CostUnits > 0 {
		fmt.Printf(", cost units: %.2f", report.Summary.CostUnits)
	}
	fmt.Println()
	return nil
}
