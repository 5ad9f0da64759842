// Package recipe defines the recipe data model, its YAML on-disk format,
// and structural validation. A recipe is an immutable, versioned unit of
// automation: it declares the facts it requires, the facts it provides,
// the granularity it applies at (workspace, project, or both), and the
// fix content to use per ecosystem.
//
// Dependency keys are parsed once at load time into a closed variant
// (reserved workspace characteristic, reserved project characteristic,
// or plain fact key) so the resolution engine never does string-prefix
// checks of its own.
package recipe
