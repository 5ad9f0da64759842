package engine

import "time"

// ProgressEventType identifies a pipeline progress event.
type ProgressEventType string

const (
	EventRunStarted      ProgressEventType = "run_started"
	EventDependencyCheck ProgressEventType = "dependency_check"
	EventScopeResolved   ProgressEventType = "scope_resolved"
	EventTargetStarted   ProgressEventType = "target_started"
	EventTargetCompleted ProgressEventType = "target_completed"
	EventTargetFailed    ProgressEventType = "target_failed"
	EventRunCompleted    ProgressEventType = "run_completed"
)

// ProgressEvent is a structured pipeline progress notification. The
// engine emits these instead of performing terminal I/O; a presentation
// layer consumes them independently of the resolution logic.
type ProgressEvent struct {
	// Type identifies the pipeline stage.
	Type ProgressEventType `json:"type"`

	// RunID is the run this event belongs to.
	RunID string `json:"run_id"`

	// RecipeID is the recipe being applied.
	RecipeID string `json:"recipe_id"`

	// Target is set for target-stage events.
	Target *ApplicationTarget `json:"target,omitempty"`

	// Result is set on target completion and failure.
	Result *ExecutionResult `json:"result,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}
