// Package telemetry groups operational observability for contentstream.
//
// The event log is the system of record and is never used for telemetry.
// Operational signals live in subpackages:
//
//   - telemetry/metrics: Prometheus collectors for subscription catch-up.
//
// Traces are configured by platform/otel.
package telemetry
