// Package cache provides a small TTL-bounded in-memory store.
//
// The token authority keeps pending PKCE challenges here, keyed by their state
// token. Take gives one-shot retrieval so a callback can be redeemed once.
package cache
