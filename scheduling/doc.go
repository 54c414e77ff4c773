// Package scheduling is the resilient scheduling gateway in front of a remote
// FHIR-based EHR.
//
// Gateway implements Scheduler: free-slot discovery, availability checks with
// conflict descriptions and nearby suggestions, and appointment create, read,
// update and delete. Bookings are checked for overlaps before business rules
// (business days, opening hours, minimum notice for non-urgent types) and
// only then committed; the EHR remains authoritative and a late conflict on
// commit surfaces as a *ConflictError with Remote set.
//
// Every call ensures a valid bearer token, runs each attempt through a shared
// rate limiter and a per-endpoint-group circuit breaker under a per-attempt
// timeout, and retries transient failures with exponential backoff. A 401
// renews the token and replays the request exactly once. Deleting falls back
// to a cancellation write on the standard API when the FHIR delete fails.
//
// The gateway does not log or emit metrics; wrap it with observe.Instrument.
package scheduling
