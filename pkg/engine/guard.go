package engine

import (
	"fmt"
	"strings"

	"github.com/recipeforge/recipeforge/pkg/state"
)

// CheckReapplication consults the applied markers for every resolved
// target. When any target was previously applied and no bypass flag is
// present, the whole run is aborted before any execution: partial
// re-application of a multi-target recipe is unsafe to decide silently.
// With a bypass flag the guard passes; it only gates confirmation and
// never filters targets.
func CheckReapplication(recipeID string, targets []ApplicationTarget, st *state.WorkspaceState, bypass bool) error {
	var applied []string
	for _, target := range targets {
		if st.IsApplied(recipeID, target.ProjectPath) {
			applied = append(applied, target.Describe())
		}
	}

	if len(applied) == 0 || bypass {
		return nil
	}

	return NewRunError(CodeUserCancelledReapplication,
		fmt.Sprintf("recipe %s was already applied to %s; re-applying requires explicit confirmation",
			recipeID, strings.Join(applied, ", ")), nil).
		WithDetails(map[string]interface{}{"applied_targets": applied})
}
