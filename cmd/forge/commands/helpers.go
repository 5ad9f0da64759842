package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/recipeforge/recipeforge/pkg/stores"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

// HistoryDBName is the run-history database file inside the metadata
// directory.
const HistoryDBName = "history.db"

// openHistory opens the run-history store under the workspace metadata
// directory, creating and migrating it as needed.
func openHistory(ctx context.Context, root string) (stores.Store, error) {
	metaDir := filepath.Join(root, workspace.MetaDirName)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(metaDir, HistoryDBName),
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.HealthCheck(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
