package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/workspace"
)

func newAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the workspace and persist the snapshot",
		Long: `Analyze the workspace structure.

Walks the workspace, detects projects by their ecosystem marker files,
classifies each project, and writes the snapshot to the metadata
directory. Subsequent commands reuse the snapshot until it is
regenerated.`,
		Example: `  # Analyze the current directory
  forge analyze

  # Analyze another workspace
  forge analyze -w ~/src/monorepo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveWorkspaceRoot()
			if err != nil {
				return err
			}

			snap, err := workspace.NewAnalyzer(root).Analyze(cmd.Context())
			if err != nil {
				return err
			}

			log.Info().
				Str("workspace", root).
				Int("projects", len(snap.Projects)).
				Str("ecosystem", snap.WorkspaceEcosystem).
				Bool("monorepo", snap.IsMonorepo).
				Msg("Workspace analyzed")

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			fmt.Printf("Workspace: %s\n", snap.Root)
			fmt.Printf("Ecosystem: %s, monorepo: %v, workspace package manager: %v\n",
				snap.WorkspaceEcosystem, snap.IsMonorepo, snap.HasWorkspacePackageManager)
			fmt.Printf("Projects (%d):\n", len(snap.Projects))
			for _, project := range snap.Projects {
				fmt.Printf("  %-32s %s", project.RelPath, project.Ecosystem)
				if project.Framework != "" {
					fmt.Printf(" (%s)", project.Framework)
				}
				fmt.Println()
			}
			return nil
		},
	}

	return cmd
}
