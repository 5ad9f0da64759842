package engine

import (
	"time"
)

// Scope is the granularity a recipe executes at.
type Scope string

const (
	// ScopeWorkspace targets the workspace root.
	ScopeWorkspace Scope = "workspace"

	// ScopeProject targets a single sub-project.
	ScopeProject Scope = "project"
)

// ApplicationTarget is the unit a recipe is executed against exactly
// once per run.
type ApplicationTarget struct {
	// Scope is workspace or project.
	Scope Scope `json:"scope"`

	// ProjectPath is the workspace-relative project path for project
	// scope, empty for workspace scope.
	ProjectPath string `json:"project_path,omitempty"`

	// Ecosystem is the ecosystem content resolution will use for this
	// target.
	Ecosystem string `json:"ecosystem,omitempty"`
}

// Describe renders the target for messages and logs.
func (t ApplicationTarget) Describe() string {
	if t.Scope == ScopeProject {
		return "project " + t.ProjectPath
	}
	return "workspace"
}

// ExecutionResult is the recorded outcome for one target. Never mutated
// after creation.
type ExecutionResult struct {
	// Target is the application target this result belongs to.
	Target ApplicationTarget `json:"target"`

	// RecipeID identifies the applied recipe.
	RecipeID string `json:"recipe_id"`

	// Success indicates the execution service reported success.
	Success bool `json:"success"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// Output is the execution service's textual result.
	Output string `json:"output,omitempty"`

	// VariantID is the content variant used, empty for agnostic content.
	VariantID string `json:"variant_id,omitempty"`

	// CostUnits is the execution cost reported for this target.
	CostUnits float64 `json:"cost_units"`

	// Facts are additional facts the execution step reported back,
	// recorded alongside the applied marker on success.
	Facts map[string]interface{} `json:"facts,omitempty"`

	// StartedAt is when this target's execution started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when this target's execution completed.
	CompletedAt time.Time `json:"completed_at"`
}

// RunSummary aggregates a run's per-target results.
type RunSummary struct {
	// TotalTargets is the number of resolved targets.
	TotalTargets int `json:"total_targets"`

	// SuccessfulTargets is the number of targets that succeeded.
	SuccessfulTargets int `json:"successful_targets"`

	// FailedTargets is the number of targets that executed and failed.
	FailedTargets int `json:"failed_targets"`

	// SkippedTargets is the number of targets never attempted because
	// the run was interrupted.
	SkippedTargets int `json:"skipped_targets"`

	// CostUnits is the accumulated execution cost, in target order.
	CostUnits float64 `json:"cost_units"`
}

// RunReport is the structured result of one engine invocation.
type RunReport struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// RecipeID identifies the applied recipe.
	RecipeID string `json:"recipe_id"`

	// DependencyCheck is the workspace-scope resolution performed
	// before target execution.
	DependencyCheck *Resolution `json:"dependency_check,omitempty"`

	// Targets is the resolved target list, in execution order.
	Targets []ApplicationTarget `json:"targets"`

	// Results holds one entry per target, in execution order.
	Results []ExecutionResult `json:"execution_results"`

	// Summary aggregates the results.
	Summary RunSummary `json:"summary"`
}
