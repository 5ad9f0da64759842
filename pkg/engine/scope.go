package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/recipeforge/recipeforge/pkg/recipe"
	"github.com/recipeforge/recipeforge/pkg/state"
	"github.com/recipeforge/recipeforge/pkg/workspace"
)

// scopeRejection records why a candidate project was not targeted,
// carried in error payloads for diagnostics.
type scopeRejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ResolveScope computes the concrete target list for a recipe given the
// workspace snapshot and persisted state. The result is deterministic
// for fixed inputs: workspace first, then projects in snapshot order.
//
// projectFilter narrows project candidates by exact workspace-relative
// path or substring match. A non-empty filter selects projects, so the
// workspace target of a workspace-preferred recipe is excluded while a
// filter is active.
func ResolveScope(
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	projectFilter string,
) ([]ApplicationTarget, error) {
	filter, err := normalizeProjectFilter(snap.Root, projectFilter)
	if err != nil {
		return nil, err
	}

	// Snapshot-derived paths are validated before any state lookup.
	for _, proj := range snap.Projects {
		if err := ensureInsideRoot(proj.RelPath); err != nil {
			return nil, err
		}
	}

	switch rec.Level {
	case recipe.LevelWorkspaceOnly:
		return resolveWorkspaceOnly(rec, snap, st)
	case recipe.LevelProjectOnly:
		return resolveProjectOnly(rec, snap, st, filter)
	case recipe.LevelWorkspacePreferred:
		return resolveWorkspacePreferred(rec, snap, st, filter)
	default:
		return nil, NewRunError(CodeRecipeInvalid,
			fmt.Sprintf("recipe %s has unknown level %q", rec.ID, rec.Level), nil)
	}
}

// resolveWorkspaceOnly yields exactly one candidate: the workspace.
// There is no project fallback at this level.
func resolveWorkspaceOnly(
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
) ([]ApplicationTarget, error) {
	if !rec.SupportsEcosystem(snap.WorkspaceEcosystem) {
		return nil, NewRunError(CodeEcosystemNotSupported,
			fmt.Sprintf("recipe %s does not support workspace ecosystem %q",
				rec.ID, snap.WorkspaceEcosystem), nil)
	}

	res := ResolveDependencies(rec.Requires, snap, st, "")
	if !res.Satisfied {
		return nil, dependenciesError(res)
	}

	return []ApplicationTarget{{
		Scope:     ScopeWorkspace,
		Ecosystem: snap.WorkspaceEcosystem,
	}}, nil
}

// resolveProjectOnly yields every supported project whose dependency
// check passes against its own state bucket.
func resolveProjectOnly(
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	filter string,
) ([]ApplicationTarget, error) {
	var targets []ApplicationTarget
	var rejections []scopeRejection

	for _, proj := range snap.Projects {
		if filter != "" && !matchesFilter(proj.RelPath, filter) {
			continue
		}
		if !rec.SupportsEcosystem(proj.Ecosystem) {
			rejections = append(rejections, scopeRejection{
				Path:   proj.RelPath,
				Reason: fmt.Sprintf("ecosystem %q not supported", proj.Ecosystem),
			})
			continue
		}

		res := ResolveDependencies(rec.Requires, snap, st, proj.RelPath)
		if !res.Satisfied {
			rejections = append(rejections, scopeRejection{
				Path:   proj.RelPath,
				Reason: res.Describe(),
			})
			continue
		}

		targets = append(targets, ApplicationTarget{
			Scope:       ScopeProject,
			ProjectPath: proj.RelPath,
			Ecosystem:   proj.Ecosystem,
		})
	}

	if len(targets) == 0 {
		return nil, NewRunError(CodeNoApplicableProjects,
			fmt.Sprintf("no applicable projects found for recipe %s", rec.ID), nil).
			WithDetails(map[string]interface{}{"projects": rejections, "filter": filter})
	}

	return targets, nil
}

// resolveWorkspacePreferred is the only level with two simultaneous
// scopes: the workspace application plus the projects it cannot cover.
func resolveWorkspacePreferred(
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	filter string,
) ([]ApplicationTarget, error) {
	workspaceApplicable := false
	workspaceReason := ""

	switch {
	case filter != "":
		workspaceReason = "excluded by project filter"
	case !rec.SupportsEcosystem(snap.WorkspaceEcosystem):
		workspaceReason = fmt.Sprintf("ecosystem %q not supported", snap.WorkspaceEcosystem)
	default:
		res := ResolveDependencies(rec.Requires, snap, st, "")
		if !res.Satisfied {
			workspaceReason = res.Describe()
		} else {
			workspaceApplicable = true
		}
	}

	if workspaceReason != "" {
		log.Debug().
			Str("recipe", rec.ID).
			Str("reason", workspaceReason).
			Msg("Workspace scope not applicable")
	}

	var projectTargets []ApplicationTarget
	var rejections []scopeRejection

	for _, proj := range snap.Projects {
		if filter != "" && !matchesFilter(proj.RelPath, filter) {
			continue
		}
		if !rec.SupportsEcosystem(proj.Ecosystem) {
			rejections = append(rejections, scopeRejection{
				Path:   proj.RelPath,
				Reason: fmt.Sprintf("ecosystem %q not supported", proj.Ecosystem),
			})
			continue
		}

		res := ResolveDependencies(rec.Requires, snap, st, proj.RelPath)
		if !res.Satisfied {
			rejections = append(rejections, scopeRejection{
				Path:   proj.RelPath,
				Reason: res.Describe(),
			})
			continue
		}

		// A project sharing the workspace ecosystem is only a separate
		// target when something distinguishes it from the workspace
		// application, otherwise the workspace run already covers it.
		if proj.Ecosystem == snap.WorkspaceEcosystem && filter == "" {
			if !distinguishesProject(rec, snap, st, proj.RelPath) {
				rejections = append(rejections, scopeRejection{
					Path:   proj.RelPath,
					Reason: "covered by the workspace application",
				})
				continue
			}
		}

		projectTargets = append(projectTargets, ApplicationTarget{
			Scope:       ScopeProject,
			ProjectPath: proj.RelPath,
			Ecosystem:   proj.Ecosystem,
		})
	}

	if !workspaceApplicable && len(projectTargets) == 0 {
		projectDetail := interface{}(rejections)
		if len(snap.Projects) == 0 {
			projectDetail = "no applicable projects found"
		}
		return nil, NewRunError(CodeNoApplicableScope,
			fmt.Sprintf("recipe %s is not applicable at workspace or project scope", rec.ID), nil).
			WithDetails(map[string]interface{}{
				"workspace": workspaceReason,
				"projects":  projectDetail,
			})
	}

	targets := make([]ApplicationTarget, 0, 1+len(projectTargets))
	if workspaceApplicable {
		targets = append(targets, ApplicationTarget{
			Scope:     ScopeWorkspace,
			Ecosystem: snap.WorkspaceEcosystem,
		})
	}
	targets = append(targets, projectTargets...)
	return targets, nil
}

// distinguishesProject reports whether any requirement is independently
// meaningful at this project's granularity: a project-reserved
// characteristic satisfied for this project, or a plain fact that
// workspace-scope evaluation leaves unsatisfied but the project's state
// bucket satisfies.
func distinguishesProject(
	rec *recipe.Recipe,
	snap *workspace.Snapshot,
	st *state.WorkspaceState,
	projectPath string,
) bool {
	for _, req := range rec.Requires {
		switch req.Key.Kind {
		case recipe.KeyReservedProject:
			if value, ok := snap.ProjectCharacteristic(projectPath, req.Key.Name); ok && value == req.Equals {
				return true
			}
		case recipe.KeyFact:
			wsValue, wsOK := st.Lookup(req.Key.Raw, "")
			wsSatisfied := wsOK && state.ValueString(wsValue) == req.Equals
			if wsSatisfied {
				continue
			}
			projValue, projOK := st.Lookup(req.Key.Raw, projectPath)
			if projOK && state.ValueString(projValue) == req.Equals {
				return true
			}
		}
	}
	return false
}

// dependenciesError builds the run-level failure enumerating every
// unmet requirement with its required vs. current value.
func dependenciesError(res *Resolution) *EngineError {
	return NewRunError(CodeDependenciesNotSatisfied,
		"dependencies not satisfied:\n"+res.Describe(), nil).
		WithDetails(map[string]interface{}{
			"missing":     res.Missing,
			"conflicting": res.Conflicting,
		})
}

// matchesFilter matches a workspace-relative project path against an
// exact path or substring filter.
func matchesFilter(relPath, filter string) bool {
	return relPath == filter || strings.Contains(relPath, filter)
}

// normalizeProjectFilter validates a caller-supplied filter before any
// state lookup. Absolute paths are converted to workspace-relative;
// anything escaping the root is rejected.
func normalizeProjectFilter(root, filter string) (string, error) {
	if filter == "" {
		return "", nil
	}

	if filepath.IsAbs(filter) {
		rel, err := filepath.Rel(root, filter)
		if err != nil || escapesRoot(rel) {
			return "", invalidPathError(filter)
		}
		return filepath.ToSlash(rel), nil
	}

	clean := filepath.Clean(filepath.FromSlash(filter))
	if escapesRoot(clean) {
		return "", invalidPathError(filter)
	}
	return filepath.ToSlash(clean), nil
}

// ensureInsideRoot validates a snapshot-derived relative project path.
func ensureInsideRoot(relPath string) error {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || escapesRoot(clean) {
		return invalidPathError(relPath)
	}
	return nil
}

func escapesRoot(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func invalidPathError(path string) *EngineError {
	return NewRunError(CodeInvalidProjectPath,
		fmt.Sprintf("project path %q resolves outside the workspace root", path), nil)
}
