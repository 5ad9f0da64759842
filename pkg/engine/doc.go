// Package engine is the recipe application core: dependency resolution
// against workspace characteristics and persisted facts, hierarchical
// scope resolution (which targets a recipe may run against, given its
// declared level), re-application guarding, ecosystem/variant content
// resolution, and the orchestrator that sequences one execution per
// target and records outcomes.
//
// Targets execute sequentially in a fixed order (workspace first, then
// projects in snapshot order): each target may read and write shared
// workspace state, and later targets must observe earlier targets'
// writes within the same run.
package engine
