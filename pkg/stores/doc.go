// Package stores provides the durable run-history layer: every engine
// run, its per-target execution results (including reported cost
// units), and an append-only event log are recorded in a SQLite
// database under the workspace metadata directory. Schema management
// uses embedded golang-migrate migrations.
//
// The history store is deliberately separate from the JSON fact state:
// facts and applied markers drive resolution, while history is an
// audit/reporting surface that future runs can inspect but never depend
// on for correctness.
package stores
