package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Request is the assembled instruction payload for one target.
type Request struct {
	// RecipeID identifies the recipe being applied.
	RecipeID string `json:"recipe_id"`

	// Summary is the recipe's one-line description.
	Summary string `json:"summary,omitempty"`

	// Content is the combined prompt and fix instruction text.
	Content string `json:"content"`

	// Scope is "workspace" or "project".
	Scope string `json:"scope"`

	// ProjectPath is the workspace-relative project path for project
	// scope, empty for workspace scope.
	ProjectPath string `json:"project_path,omitempty"`

	// WorkspaceRoot is the absolute workspace root directory.
	WorkspaceRoot string `json:"workspace_root"`

	// VariantID is the resolved content variant, empty for
	// ecosystem-agnostic recipes.
	VariantID string `json:"variant_id,omitempty"`

	// IsMonorepo carries the workspace monorepo flag for context.
	IsMonorepo bool `json:"is_monorepo"`
}

// Outcome is the execution service's result for one target.
type Outcome struct {
	// Success indicates the fix was applied.
	Success bool `json:"success"`

	// Output is the service's textual result, if any.
	Output string `json:"output,omitempty"`

	// Error is the failure description when Success is false.
	Error string `json:"error,omitempty"`

	// CostUnits is the execution cost reported by the service.
	CostUnits float64 `json:"cost_units"`

	// Facts are additional facts the execution step reports back for
	// recording alongside the applied marker.
	Facts map[string]interface{} `json:"facts,omitempty"`
}

// Executor applies an assembled instruction payload against a target.
// Execute blocks until the service reports an outcome; a non-nil error
// means the service itself failed, not the fix.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Outcome, error)
}

// TargetDescription renders the target for logs and payloads.
func (r *Request) TargetDescription() string {
	if r.Scope == "project" {
		return fmt.Sprintf("project %s", r.ProjectPath)
	}
	return "workspace root"
}

// DryRunExecutor reports what would be executed without calling the
// execution service. Every target succeeds with zero cost.
type DryRunExecutor struct{}

// Execute implements Executor.
func (e *DryRunExecutor) Execute(_ context.Context, req *Request) (*Outcome, error) {
	log.Info().
		Str("recipe", req.RecipeID).
		Str("target", req.TargetDescription()).
		Str("variant", req.VariantID).
		Int("content_bytes", len(req.Content)).
		Msg("Dry run, skipping execution")

	var b strings.Builder
	fmt.Fprintf(&b, "dry-run: would apply %s to %s", req.RecipeID, req.TargetDescription())
	if req.VariantID != "" {
		fmt.Fprintf(&b, " (variant %s)", req.VariantID)
	}

	return &Outcome{
		Success:   true,
		Output:    b.String(),
		CostUnits: 0,
	}, nil
}
