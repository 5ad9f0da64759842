// Package workspace models the analyzed workspace: the inferred root
// ecosystem, the inventory of sub-projects, and the read-only
// characteristic lookups the engine resolves reserved dependency keys
// against. The analyzer inventories projects by package-manager marker
// files and persists a snapshot the engine reads directly, regenerating
// it only when absent or unparsable.
package workspace
