// Package auth is the OAuth2 token authority for calls to the remote EHR.
//
// An Authority runs the authorization-code flow with PKCE (S256), the
// client-credentials grant, refresh and logout against the site-scoped
// endpoints {base}/oauth2/{site}/authorize, /token and /logout.
//
// Pending challenges are kept per state token with a TTL, so several
// authorization attempts can be in flight; a callback whose state matches none
// of them fails with ErrStateMismatch before any network call.
//
// EnsureValidToken reuses the held token until it comes within RefreshWindow
// of expiry. Renewals are coalesced with singleflight: concurrent callers wait
// on one refresh instead of issuing their own. A rejected refresh clears all
// held tokens and reports ErrReauthenticationRequired.
package auth
