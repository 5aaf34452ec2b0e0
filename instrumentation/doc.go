// Package instrumentation provides OpenTelemetry metrics and tracing for
// the authentication service. Providers are no-op until the embedding
// application wires exporters, so instrumented code paths carry close to
// zero overhead by default.
package instrumentation
