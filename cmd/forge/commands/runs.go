package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var (
		recipeFilter string
		limit        int
		prune        int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recipe run history",
		Long: `Show recipe run history.

Without arguments, lists the most recent runs. With a run id (or an
unambiguous prefix of one), shows that run's per-target results and
its event log.`,
		Example: `  # Show the most recent runs
  forge runs

  # Show runs for one recipe
  forge runs --recipe add-linting --limit 5

  # Show one run's targets and events
  forge runs 3f2a91c4

  # Keep only the newest 50 runs
  forge runs --prune 50`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveWorkspaceRoot()
			if err != nil {
				return err
			}

			history, err := openHistory(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer history.Close()

			if prune > 0 {
				removed, err := history.PruneRuns(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d run(s), kept the newest %d\n", removed, prune)
				return nil
			}

			if len(args) == 1 {
				return showRun(cmd.Context(), history, args[0])
			}

			var filter *string
			if recipeFilter != "" {
				filter = &recipeFilter
			}
			runs, err := history.ListRuns(cmd.Context(), filter, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Printf("  %s  %-28s %-10s %d/%d targets  %s\n",
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.RecipeID,
					run.Status,
					run.SucceededCount,
					run.TotalTargets,
					run.ID[:8])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&recipeFilter, "recipe", "", "only show runs for this recipe")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the newest N runs")

	return cmd
}

// showRun renders one run's record, per-target results, and event log.
func showRun(ctx context.Context, history stores.Store, id string) error {
	run, err := findRun(ctx, history, id)
	if err != nil {
		return err
	}

	results, err := history.ListTargetResultsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	events, err := history.GetEvents(ctx, &run.ID, nil, 200, 0)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Run     *stores.Run            `json:"run"`
			Results []*stores.TargetResult `json:"target_results"`
			Events  []*stores.Event        `json:"events"`
		}{run, results, events})
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  Recipe:    %s\n", run.RecipeID)
	fmt.Printf("  Status:    %s\n", run.Status)
	fmt.Printf("  Targets:   %d total, %d succeeded, %d failed\n",
		run.TotalTargets, run.SucceededCount, run.FailedCount)
	fmt.Printf("  Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if run.CostUnits > 0 {
		fmt.Printf("  Cost:      %.2f units\n", run.CostUnits)
	}
	if run.Error != nil {
		fmt.Printf("  Error:     %s\n", *run.Error)
	}

	if len(results) > 0 {
		fmt.Println("\nTargets:")
		for _, r := range results {
			status := "ok "
			if !r.Success {
				status = "err"
			}
			target := "workspace"
			if r.ProjectPath != nil {
				target = "project " + *r.ProjectPath
			}
			fmt.Printf("  %s %s\n", status, target)
			if r.Error != nil {
				fmt.Printf("      %s\n", *r.Error)
			}
		}
	}

	if len(events) > 0 {
		fmt.Println("\nEvents:")
		for _, e := range events {
			fmt.Printf("  %s  %-7s %s\n",
				e.Timestamp.Format("15:04:05"), e.Level, e.Message)
		}
	}
	return nil
}

// findRun resolves a full run id or an unambiguous id prefix.
func findRun(ctx context.Context, history stores.Store, id string) (*stores.Run, error) {
	if run, err := history.GetRun(ctx, id); err == nil {
		return run, nil
	}

	runs, err := history.ListRuns(ctx, nil, 200, 0)
	if err != nil {
		return nil, err
	}
	var match *stores.Run
	for _, run := range runs {
		if strings.HasPrefix(run.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run id %q is ambiguous", id)
			}
			match = run
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return match, nil
}
