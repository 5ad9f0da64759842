package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, recipe_id, workspace_root, status, total_targets, succeeded_count,
			failed_count, cost_units, error, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.RecipeID,
		run.WorkspaceRoot,
		run.Status,
		run.TotalTargets,
		run.SucceededCount,
		run.FailedCount,
		run.CostUnits,
		run.Error,
		run.StartedAt,
		run.CompletedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, recipe_id, workspace_root, status, total_targets, succeeded_count,
			failed_count, cost_units, error, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.RecipeID,
		&run.WorkspaceRoot,
		&run.Status,
		&run.TotalTargets,
		&run.SucceededCount,
		&run.FailedCount,
		&run.CostUnits,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// SetRunTargets records the resolved target count for a run. The count
// is only known once scope resolution completes, after the run row was
// created.
func (s *SQLiteStore) SetRunTargets(ctx context.Context, id string, total int) error {
	query := `UPDATE runs SET total_targets = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, total, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set run targets: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// FinishRun records the final status and summary counters for a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, succeeded, failed int, costUnits float64, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, succeeded_count = ?, failed_count = ?, cost_units = ?,
			error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, status, succeeded, failed, costUnits, errMsg, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns lists runs with pagination, optionally filtered by recipe.
func (s *SQLiteStore) ListRuns(ctx context.Context, recipeID *string, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, recipe_id, workspace_root, status, total_targets, succeeded_count,
			failed_count, cost_units, error, started_at, completed_at, created_at, updated_at
		FROM runs
		WHERE (? IS NULL OR recipe_id = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, recipeID, recipeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID,
			&run.RecipeID,
			&run.WorkspaceRoot,
			&run.Status,
			&run.TotalTargets,
			&run.SucceededCount,
			&run.FailedCount,
			&run.CostUnits,
			&run.Error,
			&run.StartedAt,
			&run.CompletedAt,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// PruneRuns deletes all but the newest keep runs, along with their
// target results and events, in one transaction. Returns the number of
// runs removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative")
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const kept = `SELECT id FROM runs ORDER BY started_at DESC LIMIT ?`

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE run_id IS NOT NULL AND run_id NOT IN (`+kept+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM target_results WHERE run_id NOT IN (`+kept+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune target results: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id NOT IN (`+kept+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	return removed, nil
}

// CreateTargetResult inserts one per-target execution result.
func (s *SQLiteStore) CreateTargetResult(ctx context.Context, result *TargetResult) error {
	query := `
		INSERT INTO target_results (id, run_id, recipe_id, scope, project_path, variant_id,
			success, output, error, cost_units, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.RunID,
		result.RecipeID,
		result.Scope,
		result.ProjectPath,
		result.VariantID,
		result.Success,
		result.Output,
		result.Error,
		result.CostUnits,
		result.StartedAt,
		result.CompletedAt,
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create target result: %w", err)
	}

	return nil
}

// ListTargetResultsByRun lists all target results for a run in recorded order.
func (s *SQLiteStore) ListTargetResultsByRun(ctx context.Context, runID string) ([]*TargetResult, error) {
	query := `
		SELECT id, run_id, recipe_id, scope, project_path, variant_id,
			success, output, error, cost_units, started_at, completed_at, created_at
		FROM target_results
		WHERE run_id = ?
		ORDER BY started_at ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list target results: %w", err)
	}
	defer rows.Close()

	results := []*TargetResult{}
	for rows.Next() {
		r := &TargetResult{}
		err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.RecipeID,
			&r.Scope,
			&r.ProjectPath,
			&r.VariantID,
			&r.Success,
			&r.Output,
			&r.Error,
			&r.CostUnits,
			&r.StartedAt,
			&r.CompletedAt,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// AppendEvent appends an event to the run log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (run_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}

	return nil
}

// GetEvents retrieves events with optional run and level filters.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, run_id, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR run_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, runID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		e := &Event{}
		err := rows.Scan(
			&e.ID,
			&e.RunID,
			&e.Level,
			&e.Message,
			&e.Details,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// HealthCheck verifies the database connection is usable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
