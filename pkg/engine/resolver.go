package engine

import (
	"fmt"
	"strings"

	"github.com/recipeforge/recipeforge/pkg/recipe"
	"github.com/recipeforge/recipeforge/pkg/state"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

// RequirementFailure describes one unmet dependency assertion.
type RequirementFailure struct {
	// Key is the original requirement key spelling.
	Key string `json:"key"`

	// Kind classifies the key (reserved workspace/project or fact).
	Kind recipe.KeyKind `json:"kind"`

	// Required is the value the requirement asserts.
	Required string `json:"required"`

	// Current is the resolved value; empty when undefined.
	Current string `json:"current,omitempty"`

	// Defined is false when the value could not be resolved at all.
	Defined bool `json:"defined"`
}

// Describe renders the failure in domain terms with a remedial hint.
func (f RequirementFailure) Describe() string {
	current := f.Current
	if !f.Defined {
		current = "undefined"
	}
	base := fmt.Sprintf("%s = %s (currently: %s)", f.Key, f.Required, current)

	switch f.Kind {
	case recipe.KeyReservedWorkspace:
		return base + ": a workspace characteristic; this workspace does not match the recipe's requirements"
	case recipe.KeyReservedProject:
		if !f.Defined {
			return base + ": a project characteristic; it cannot be evaluated at workspace scope or the project record is missing"
		}
		return base + ": a project characteristic; this project does not match the recipe's requirements"
	default:
		if !f.Defined {
			return base + ": a produced fact; run the prerequisite recipe that provides it first"
		}
		return base + ": a produced fact with a conflicting value; re-run the prerequisite recipe or reset state"
	}
}

// Resolution is the verdict of evaluating a recipe's requirements.
type Resolution struct {
	// Satisfied is true iff Missing and Conflicting are both empty.
	Satisfied bool `json:"satisfied"`

	// Missing lists requirements whose value could not be resolved.
	Missing []RequirementFailure `json:"missing,omitempty"`

	// Conflicting lists requirements resolved to a different value.
	Conflicting []RequirementFailure `json:"conflicting,omitempty"`
}

// Describe enumerates every unmet requirement, one per line.
func (r *Resolution) Describe() string {
	if r.Satisfied {
		return "all requirements satisfied"
	}
	var lines []string
	for _, f := range r.Missing {
		lines = append(lines, "missing: "+f.Describe())
	}
	for _, f := range r.Conflicting {
		lines = append(lines, "conflicting: "+f.Describe())
	}
	return strings.Join(lines, "\n")
}

// Failures returns missing and conflicting entries as one list.
func (r *Resolution) Failures() []RequirementFailure {
	out := make([]RequirementFailure, 0, len(r.Missing)+len(r.Conflicting))
	out = append(out, r.Missing...)
	out = append(out, r.Conflicting...)
	return out
}

// ResolveDependencies evaluates requirements against the snapshot's
// characteristics and persisted state. projectPath selects the project
// granularity: when empty, project-reserved keys cannot be evaluated
// and count as missing. The call has no side effects and is safe to
// repeat speculatively during scope resolution.
func ResolveDependencies(
	reqs []recipe.Requirement,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	projectPath string,
) *Resolution {
	res := &Resolution{}

	for _, req := range reqs {
		value, defined := resolveValue(req.Key, snap, st, projectPath)
		failure := RequirementFailure{
			Key:      req.Key.Raw,
			Kind:     req.Key.Kind,
			Required: req.Equals,
			Current:  value,
			Defined:  defined,
		}
		switch {
		case !defined:
			res.Missing = append(res.Missing, failure)
		case value != req.Equals:
			res.Conflicting = append(res.Conflicting, failure)
		}
	}

	res.Satisfied = len(res.Missing) == 0 && len(res.Conflicting) == 0
	return res
}

// resolveValue resolves one dependency key to its current string value.
func resolveValue(
	key recipe.DepKey,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	projectPath string,
) (string, bool) {
	switch key.Kind {
	case recipe.KeyReservedWorkspace:
		return snap.WorkspaceCharacteristic(key.Name)
	case recipe.KeyReservedProject:
		if projectPath == "" {
			return "", false
		}
		return snap.ProjectCharacteristic(projectPath, key.Name)
	default:
		v, ok := st.Lookup(key.Raw, projectPath)
		if !ok {
			return "", false
		}
		return state.ValueString(v), true
	}
}
