package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the status of a recipe application run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// EventLevel represents the severity level of a run event.
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents one recipe application run.
type Run struct {
	ID              string     `json:"id"`
	RecipeID        string     `json:"recipe_id"`
	WorkspaceRoot   string     `json:"workspace_root"`
	Status          RunStatus  `json:"status"`
	TotalTargets    int        `json:"total_targets"`
	SucceededCount  int        `json:"succeeded_count"`
	FailedCount     int        `json:"failed_count"`
	CostUnits       float64    `json:"cost_units"`
	Error           *string    `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TargetResult represents the recorded outcome for one application target.
type TargetResult struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	RecipeID    string     `json:"recipe_id"`
	Scope       string     `json:"scope"` // workspace or project
	ProjectPath *string    `json:"project_path,omitempty"`
	VariantID   *string    `json:"variant_id,omitempty"`
	Success     bool       `json:"success"`
	Output      *string    `json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CostUnits   float64    `json:"cost_units"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event represents an append-only run log event.
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the run-history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	SetRunTargets(ctx context.Context, id string, total int) error
	FinishRun(ctx context.Context, id string, status RunStatus, succeeded, failed int, costUnits float64, errMsg *string) error
	ListRuns(ctx context.Context, recipeID *string, limit, offset int) ([]*Run, error)
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// TargetResult operations
	CreateTargetResult(ctx context.Context, result *TargetResult) error
	ListTargetResultsByRun(ctx context.Context, runID string) ([]*TargetResult, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
