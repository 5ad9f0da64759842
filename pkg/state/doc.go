// Package state persists workspace facts and applied-recipe markers.
//
// The state artifact is a single JSON file with two buckets: a flat
// workspace fact map and a map of project-relative-path to per-project
// fact maps. All writes go through one atomic read-modify-write (write
// to a temp file, fsync, rename, sync the directory) so a crash cannot
// leave the artifact parseable-but-inconsistent. A store that exists but
// cannot be parsed is a hard error, never an empty state: silently
// treating corrupt state as empty could re-apply a recipe and duplicate
// its side effects.
package state
