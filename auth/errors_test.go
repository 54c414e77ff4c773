package auth

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrStateMismatch", ErrStateMismatch},
		{"ErrNoRefreshToken", ErrNoRefreshToken},
		{"ErrReauthenticationRequired", ErrReauthenticationRequired},
		{"ErrNotAuthenticated", ErrNotAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, ErrAuthentication) {
				t.Errorf("%s does not match ErrAuthentication", tt.name)
			}
			if errors.Is(tt.err, ErrConfiguration) {
				t.Errorf("%s matches ErrConfiguration", tt.name)
			}
		})
	}
}

func TestErrStateMismatch_Message(t *testing.T) {
	if !strings.Contains(ErrStateMismatch.Error(), "possible CSRF attack") {
		t.Errorf("ErrStateMismatch = %q, want CSRF wording", ErrStateMismatch.Error())
	}
}

func TestErrorsIs_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("exchange code: %w", ErrStateMismatch)

	if !errors.Is(wrapped, ErrStateMismatch) {
		t.Error("wrapped error should match ErrStateMismatch")
	}
	if !errors.Is(wrapped, ErrAuthentication) {
		t.Error("wrapped error should match ErrAuthentication")
	}
}
