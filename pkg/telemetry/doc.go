// Package telemetry provides structured logging (zerolog) and
// Prometheus metrics for the recipe application engine. The engine
// itself emits structured progress events; this package covers process
// logging and the optional metrics exposition endpoint.
package telemetry
