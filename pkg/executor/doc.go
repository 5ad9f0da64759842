// Package executor is the boundary to the AI-driven execution service.
// The engine assembles one instruction payload per application target
// (combined prompt and fix content plus structured metadata) and awaits
// a single outcome: success flag, textual output, reported cost units.
// The engine performs no retries of its own; transient API failures are
// handled inside the client with exponential backoff.
package executor
