package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/recipeforge/recipeforge/pkg/recipe"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate <recipe-id>",
		Short: "Validate a recipe's structure",
		Long: `Validate a recipe's structure.

Checks manifest shape, reserved namespace usage in provides, requirement
keys, and that every ecosystem's content files resolve. Validation never
consults workspace state.`,
		Example: `  # Validate a recipe once
  forge validate add-linting

  # Re-validate whenever the recipe directory changes
  forge validate add-linting --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipeID := args[0]
			loader := recipe.NewLoader(recipesDir)

			if err := validateOnce(loader, recipeID); err != nil && !watch {
				return err
			}
			if !watch {
				return nil
			}
			return watchRecipe(cmd, loader, recipeID)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate when the recipe directory changes")

	return cmd
}

func validateOnce(loader *recipe.Loader, recipeID string) error {
	rec, err := loader.Find(recipeID)
	if err != nil {
		fmt.Printf("FAIL %s: %v\n", recipeID, err)
		return err
	}

	result := rec.Validate()
	if result.Valid {
		fmt.Printf("OK   %s\n", rec.ID)
		return nil
	}
	fmt.Printf("FAIL %s\n", rec.ID)
	for _, verr := range result.Errors {
		fmt.Printf("  %s: %s\n", verr.Field, verr.Message)
	}
	return fmt.Errorf("recipe %s has %d validation error(s)", rec.ID, len(result.Errors))
}

// watchRecipe re-runs validation on writes under the recipe directory,
// debounced so editors that write multiple files trigger one pass.
func watchRecipe(cmd *cobra.Command, loader *recipe.Loader, recipeID string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Join(recipesDir, recipeID)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log.Info().Str("dir", dir).Msg("Watching recipe directory")

	var timer *time.Timer
	debounce := 500 * time.Millisecond

	for {
		select {
		case <-cmd.Context().Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				_ = validateOnce(loader, recipeID)
			})

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(werr).Msg("Watcher error")
		}
	}
}
