package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// TokenSet is the credential state held by the authority.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string
	Scope        string

	// Expiry is the absolute expiry instant. Zero means the server reported
	// no lifetime; the token is used until the remote side rejects it.
	Expiry time.Time
}

// ExpiresWithin reports whether the token expires before now+window.
func (t *TokenSet) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(window).Before(t.Expiry)
}

// parseTokenResponse reads a token endpoint body. expires_in is accepted as a
// number or a numeric string.
func parseTokenResponse(body []byte, issued time.Time) (*TokenSet, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: token response is not JSON", ErrAuthentication)
	}
	doc := gjson.ParseBytes(body)

	ts := &TokenSet{
		AccessToken:  doc.Get("access_token").String(),
		RefreshToken: doc.Get("refresh_token").String(),
		TokenType:    doc.Get("token_type").String(),
		IDToken:      doc.Get("id_token").String(),
		Scope:        doc.Get("scope").String(),
	}
	if ts.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrAuthentication)
	}
	if ts.TokenType == "" {
		ts.TokenType = "Bearer"
	}

	if secs := doc.Get("expires_in").Int(); secs > 0 {
		ts.Expiry = issued.Add(time.Duration(secs) * time.Second)
	} else if exp, ok := jwtExpiry(ts.AccessToken); ok {
		ts.Expiry = exp
	}

	return ts, nil
}

// jwtExpiry reads the exp claim of a JWT access token without verifying it.
// The authority is the token's bearer, not its audience.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
