package auth

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/jonwraymond/schedgate/transport"
)

// Grant selects how the authority obtains tokens without user interaction.
type Grant string

const (
	// GrantAuthorizationCode obtains tokens through the PKCE browser flow and
	// renews them with the refresh token.
	GrantAuthorizationCode Grant = "authorization_code"

	// GrantClientCredentials obtains tokens with the client id and secret and
	// may re-grant whenever no refresh token is held.
	GrantClientCredentials Grant = "client_credentials"
)

// DefaultSite is the tenant site used when none is configured.
const DefaultSite = "default"

// Credentials identifies the client to the remote authorization server.
type Credentials struct {
	// BaseURL is the EHR root, e.g. https://ehr.example.com.
	BaseURL string

	ClientID     string
	ClientSecret string

	// RedirectURI is required for the authorization-code flow only.
	RedirectURI string

	// Scope is a space-separated scope string.
	Scope string

	// SiteID selects the tenant. Default: "default"
	SiteID string
}

func (c Credentials) site() string {
	if c.SiteID == "" {
		return DefaultSite
	}
	return c.SiteID
}

func (c Credentials) root() string {
	return strings.TrimRight(c.BaseURL, "/")
}

// OAuthBaseURL is the root of the authorize/token/logout endpoints.
func (c Credentials) OAuthBaseURL() string {
	return c.root() + "/oauth2/" + c.site()
}

// AuthorizeURL is the authorization endpoint.
func (c Credentials) AuthorizeURL() string { return c.OAuthBaseURL() + "/authorize" }

// TokenURL is the token endpoint.
func (c Credentials) TokenURL() string { return c.OAuthBaseURL() + "/token" }

// LogoutURL is the logout endpoint.
func (c Credentials) LogoutURL() string { return c.OAuthBaseURL() + "/logout" }

// FHIRBaseURL is the root of the FHIR resource API.
func (c Credentials) FHIRBaseURL() string {
	return c.root() + "/apis/" + c.site() + "/fhir"
}

// StandardBaseURL is the root of the secondary "standard" resource API.
func (c Credentials) StandardBaseURL() string {
	return c.root() + "/apis/" + c.site() + "/api"
}

// Validate checks the settings every grant needs.
func (c Credentials) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL is required", ErrConfiguration)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q is not absolute", ErrConfiguration, c.BaseURL)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	return nil
}

// Config configures an Authority.
type Config struct {
	Credentials Credentials

	// Grant is the non-interactive renewal path.
	// Default: GrantAuthorizationCode
	Grant Grant

	// RefreshWindow renews a token this long before it expires.
	// Default: 5 minutes
	RefreshWindow time.Duration

	// ChallengeTTL bounds how long a pending PKCE challenge may be redeemed.
	// Default: 10 minutes
	ChallengeTTL time.Duration

	// MaxPendingChallenges bounds concurrent authorization attempts.
	// Default: 256
	MaxPendingChallenges int

	// RenewTimeout bounds a shared renewal round trip.
	// Default: 30 seconds
	RenewTimeout time.Duration

	// HTTPClient sends token requests. Default: http.Client with 10s timeout.
	HTTPClient transport.Doer

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// Random is the entropy source for PKCE values. Default: crypto/rand.Reader
	Random io.Reader
}
