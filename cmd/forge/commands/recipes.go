package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/recipe"
)

func newRecipesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipes",
		Short: "List recipes in the collection directory",
		Example: `  # List recipes from the default collection
  forge recipes

  # List recipes from another collection
  forge recipes -r ./my-recipes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipes, err := recipe.NewLoader(recipesDir).List()
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recipes)
			}

			if len(recipes) == 0 {
				fmt.Printf("No recipes found in %s\n", recipesDir)
				return nil
			}
			for _, rec := range recipes {
				ecosystems := "any"
				if !rec.IsEcosystemAgnostic() {
					ids := make([]string, len(rec.Ecosystems))
					for i, eco := range rec.Ecosystems {
						ids[i] = eco.ID
					}
					ecosystems = strings.Join(ids, ",")
				}
				fmt.Printf("  %-28s %-20s %-12s %s\n", rec.ID, rec.Level, rec.Category, ecosystems)
			}
			return nil
		},
	}

	return cmd
}
