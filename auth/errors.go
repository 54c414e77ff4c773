package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the token authority.
var (
	// ErrConfiguration reports missing or invalid client settings.
	ErrConfiguration = errors.New("auth: configuration error")

	// ErrAuthentication is the root of every credential-exchange failure.
	ErrAuthentication = errors.New("auth: authentication failed")

	// ErrStateMismatch is returned when a callback's state matches no pending
	// challenge.
	ErrStateMismatch = fmt.Errorf("%w: state mismatch - possible CSRF attack", ErrAuthentication)

	// ErrNoRefreshToken is returned when a refresh is requested without one.
	ErrNoRefreshToken = fmt.Errorf("%w: no refresh token available", ErrAuthentication)

	// ErrReauthenticationRequired is returned after a rejected refresh. Every
	// held token has been cleared; a grant flow must be restarted.
	ErrReauthenticationRequired = fmt.Errorf("%w: re-authentication required", ErrAuthentication)

	// ErrNotAuthenticated is returned when no token is held and none can be
	// obtained without user interaction.
	ErrNotAuthenticated = fmt.Errorf("%w: not authenticated", ErrAuthentication)
)
