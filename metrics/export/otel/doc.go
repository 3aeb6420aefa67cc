// Package otel bridges goSession metrics into an OpenTelemetry meter.
//
// [NewOTelExporter] registers observable instruments for every counter and
// histogram bucket and reads a fresh snapshot on each collection. Close
// unregisters the callback.
//
// # What this package must NOT do
//
//   - Install a global meter provider; callers own the SDK setup.
//   - Mutate session state.
package otel
