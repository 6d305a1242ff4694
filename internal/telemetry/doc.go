// Package telemetry holds the tracing and metrics instruments of the engine.
//
// Per-invocation spans and pipe metrics go through the global OpenTelemetry
// providers. Run-level metrics are kept in a dedicated prometheus registry
// and served by Handler.
package telemetry
