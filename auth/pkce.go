package auth

import (
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
)

// VerifierLength is the length of every generated code verifier.
const VerifierLength = 128

const (
	verifierBytes = 96 // 96 bytes encode to 128 base64url characters
	stateBytes    = 32
)

// ChallengeMethodS256 is the only challenge method the authority issues.
const ChallengeMethodS256 = "S256"

// PKCEChallenge is one pending authorization attempt.
type PKCEChallenge struct {
	CodeVerifier  string
	CodeChallenge string
	Method        string
	State         string
	CreatedAt     time.Time
}

func newPKCEChallenge(random io.Reader, now time.Time) (*PKCEChallenge, error) {
	verifier, err := randomString(random, verifierBytes)
	if err != nil {
		return nil, fmt.Errorf("auth: generate code verifier: %w", err)
	}
	state, err := randomString(random, stateBytes)
	if err != nil {
		return nil, fmt.Errorf("auth: generate state: %w", err)
	}

	return &PKCEChallenge{
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:        ChallengeMethodS256,
		State:         state,
		CreatedAt:     now,
	}, nil
}

func randomString(random io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
