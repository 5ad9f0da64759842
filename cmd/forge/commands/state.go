package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/state"
)

func newStateCommand() *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show recorded workspace state",
		Long: `Show the applied markers and facts recorded for the workspace and
its projects.`,
		Example: `  # Show all recorded state
  forge state

  # Show state for a single project
  forge state --project services/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveWorkspaceRoot()
			if err != nil {
				return err
			}

			st, err := state.NewStore(root).Read()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			if projectPath != "" {
				bucket, ok := st.Projects[projectPath]
				if !ok {
					fmt.Printf("No state recorded for project %s\n", projectPath)
					return nil
				}
				printBucket("project "+projectPath, bucket)
				return nil
			}

			printBucket("workspace", st.Workspace)
			paths := make([]string, 0, len(st.Projects))
			for path := range st.Projects {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				printBucket("project "+path, st.Projects[path])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectPath, "project", "p", "", "show state for this project only")

	return cmd
}

func printBucket(label string, bucket map[string]interface{}) {
	fmt.Printf("%s:\n", label)
	if len(bucket) == 0 {
		fmt.Println("  (empty)")
		return
	}
	keys := make([]string, 0, len(bucket))
	for key := range bucket {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %s = %s\n", key, state.ValueString(bucket[key]))
	}
}
