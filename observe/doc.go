// Package observe provides observability for the scheduling gateway.
//
// Instrument wraps a scheduling.Scheduler so each call records a span, the
// scheduling.op.* metrics labelled by operation and error kind, and one
// structured log line. Logging is zerolog-backed and redacts credential
// fields. NewObserver builds the OpenTelemetry providers from the exporters
// subpackage; ObserveBreakers exports circuit breaker state.
package observe
