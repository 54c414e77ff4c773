// Package transport is the HTTP layer shared by the token authority and the
// scheduling gateway.
//
// A Client joins paths to a base URL, encodes JSON or form bodies, sets
// bearer or basic credentials and tags every request with an X-Request-ID.
// Responses are read in full. Non-2xx statuses come back as *StatusError,
// which matches ErrServer, ErrRateLimited, ErrUnauthorized, ErrNotFound or
// ErrClientRequest under errors.Is. Network failures wrap ErrTransport.
//
// Transient classifies the errors worth retrying and counting against a
// circuit breaker.
package transport
