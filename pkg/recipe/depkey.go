package recipe

import "strings"

// KeyKind classifies a dependency key.
type KeyKind string

const (
	// KeyReservedWorkspace is a read-only workspace characteristic
	// (e.g. "workspace.ecosystem", "workspace.is_monorepo") resolved
	// from the workspace snapshot.
	KeyReservedWorkspace KeyKind = "reserved_workspace"

	// KeyReservedProject is a read-only project characteristic
	// (e.g. "project.ecosystem", "project.framework") resolved from a
	// project record in the workspace snapshot.
	KeyReservedProject KeyKind = "reserved_project"

	// KeyFact is an ordinary fact key resolved from persisted workspace
	// state, typically produced by another recipe's provides list.
	KeyFact KeyKind = "fact"
)

const (
	workspacePrefix = "workspace."
	projectPrefix   = "project."

	// AppliedSuffix is the engine-owned marker suffix recorded in state
	// once a recipe has successfully run at a given scope.
	AppliedSuffix = ".applied"
)

// DepKey is a parsed dependency key. Raw preserves the original spelling
// for error messages and state lookups; Name holds the characteristic
// name with the reserved prefix stripped (empty for fact keys).
type DepKey struct {
	Kind KeyKind `json:"kind"`
	Raw  string  `json:"raw"`
	Name string  `json:"name,omitempty"`
}

// ParseDepKey classifies a raw requirement key into its variant.
func ParseDepKey(raw string) DepKey {
	switch {
	case strings.HasPrefix(raw, workspacePrefix):
		return DepKey{Kind: KeyReservedWorkspace, Raw: raw, Name: strings.TrimPrefix(raw, workspacePrefix)}
	case strings.HasPrefix(raw, projectPrefix):
		return DepKey{Kind: KeyReservedProject, Raw: raw, Name: strings.TrimPrefix(raw, projectPrefix)}
	default:
		return DepKey{Kind: KeyFact, Raw: raw}
	}
}

// IsReserved reports whether the key lives in an engine-owned namespace.
func (k DepKey) IsReserved() bool {
	return k.Kind == KeyReservedWorkspace || k.Kind == KeyReservedProject
}

// String returns the original key spelling.
func (k DepKey) String() string {
	return k.Raw
}

// IsReservedFactKey reports whether a provides entry collides with an
// engine-owned namespace or the applied-marker convention. Recipes may
// not claim to produce such keys.
func IsReservedFactKey(key string) bool {
	return strings.HasPrefix(key, workspacePrefix) ||
		strings.HasPrefix(key, projectPrefix) ||
		strings.HasSuffix(key, AppliedSuffix)
}
