package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/schedgate/cache"
	"github.com/jonwraymond/schedgate/transport"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// maxTokenResponse bounds the bytes read from the authorization server.
const maxTokenResponse = 64 << 10

// Authority produces and renews bearer credentials for downstream calls.
// It is safe for concurrent use.
type Authority struct {
	config  Config
	client  *transport.Client
	oauth   *oauth2.Config
	pending *cache.MemoryCache[*PKCEChallenge]

	mu    sync.RWMutex
	token *TokenSet

	renewals singleflight.Group // coalesces concurrent renewals
}

// NewAuthority creates a token authority. It fails with ErrConfiguration when
// the credentials are incomplete.
func NewAuthority(config Config) (*Authority, error) {
	if err := config.Credentials.Validate(); err != nil {
		return nil, err
	}

	// Apply defaults
	if config.Grant == "" {
		config.Grant = GrantAuthorizationCode
	}
	if config.Grant != GrantAuthorizationCode && config.Grant != GrantClientCredentials {
		return nil, fmt.Errorf("%w: unknown grant %q", ErrConfiguration, config.Grant)
	}
	if config.Grant == GrantClientCredentials && config.Credentials.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client credentials grant requires a client secret", ErrConfiguration)
	}
	if config.RefreshWindow <= 0 {
		config.RefreshWindow = 5 * time.Minute
	}
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = 10 * time.Minute
	}
	if config.MaxPendingChallenges <= 0 {
		config.MaxPendingChallenges = 256
	}
	if config.RenewTimeout <= 0 {
		config.RenewTimeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Random == nil {
		config.Random = rand.Reader
	}

	creds := config.Credentials
	return &Authority{
		config: config,
		client: transport.NewClient(creds.OAuthBaseURL(),
			transport.WithDoer(config.HTTPClient),
			transport.WithMaxBody(maxTokenResponse)),
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       strings.Fields(creds.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  creds.AuthorizeURL(),
				TokenURL: creds.TokenURL(),
			},
		},
		pending: cache.NewMemoryCache[*PKCEChallenge](cache.MemoryConfig{
			MaxEntries: config.MaxPendingChallenges,
			Now:        config.Now,
		}),
	}, nil
}

// Credentials returns the client settings.
func (a *Authority) Credentials() Credentials {
	return a.config.Credentials
}

// RefreshWindow is how early tokens are renewed.
func (a *Authority) RefreshWindow() time.Duration {
	return a.config.RefreshWindow
}

// GeneratePKCEChallenge creates a challenge and registers it as pending under
// its state until it is redeemed or ChallengeTTL elapses.
func (a *Authority) GeneratePKCEChallenge() (*PKCEChallenge, error) {
	ch, err := newPKCEChallenge(a.config.Random, a.config.Now())
	if err != nil {
		return nil, err
	}
	if err := a.pending.Set(context.Background(), ch.State, ch, a.config.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("auth: register challenge: %w", err)
	}
	return ch, nil
}

// AuthorizationURL returns the URL the user agent is sent to for ch.
func (a *Authority) AuthorizationURL(ch *PKCEChallenge) (string, error) {
	if a.config.Credentials.RedirectURI == "" {
		return "", fmt.Errorf("%w: redirect URI is required for the authorization code flow", ErrConfiguration)
	}
	if ch == nil {
		return "", fmt.Errorf("%w: no challenge", ErrConfiguration)
	}

	return a.oauth.AuthCodeURL(ch.State,
		oauth2.S256ChallengeOption(ch.CodeVerifier),
		oauth2.SetAuthURLParam("aud", a.config.Credentials.FHIRBaseURL()),
	), nil
}

// BeginAuthorization generates a challenge and returns its authorization URL.
func (a *Authority) BeginAuthorization() (string, *PKCEChallenge, error) {
	if a.config.Credentials.RedirectURI == "" {
		return "", nil, fmt.Errorf("%w: redirect URI is required for the authorization code flow", ErrConfiguration)
	}
	ch, err := a.GeneratePKCEChallenge()
	if err != nil {
		return "", nil, err
	}
	u, err := a.AuthorizationURL(ch)
	if err != nil {
		return "", nil, err
	}
	return u, ch, nil
}

// ExchangeCode redeems an authorization code. The state must match a pending
// challenge; each challenge can be redeemed once.
func (a *Authority) ExchangeCode(ctx context.Context, code, state string) (*TokenSet, error) {
	ch, ok := a.pending.Take(ctx, state)
	if !ok {
		return nil, ErrStateMismatch
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrAuthentication)
	}

	creds := a.config.Credentials
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {creds.RedirectURI},
		"client_id":     {creds.ClientID},
		"code_verifier": {ch.CodeVerifier},
	}
	return a.requestToken(ctx, "exchange code", form, "")
}

// AuthenticateClientCredentials obtains a token with the client id and secret.
func (a *Authority) AuthenticateClientCredentials(ctx context.Context) (*TokenSet, error) {
	creds := a.config.Credentials
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client secret is required", ErrConfiguration)
	}
	form := url.Values{"grant_type": {"client_credentials"}}
	if creds.Scope != "" {
		form.Set("scope", creds.Scope)
	}
	return a.requestToken(ctx, "client credentials", form, "")
}

// RefreshAccessToken trades the held refresh token for a new token set. A
// rejected refresh clears every held token and returns
// ErrReauthenticationRequired.
func (a *Authority) RefreshAccessToken(ctx context.Context) (*TokenSet, error) {
	a.mu.RLock()
	var refresh string
	if a.token != nil {
		refresh = a.token.RefreshToken
	}
	a.mu.RUnlock()

	if refresh == "" {
		return nil, ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {a.config.Credentials.ClientID},
	}
	ts, err := a.requestToken(ctx, "refresh token", form, refresh)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			a.clear()
			return nil, fmt.Errorf("%w: %w", ErrReauthenticationRequired, se)
		}
		return nil, err
	}
	return ts, nil
}

// requestToken posts a grant to the token endpoint and stores the result.
// keepRefresh is retained when the response carries no new refresh token.
func (a *Authority) requestToken(ctx context.Context, op string, form url.Values, keepRefresh string) (*TokenSet, error) {
	creds := a.config.Credentials
	req := transport.Request{
		Method: http.MethodPost,
		Path:   creds.TokenURL(),
		Form:   form,
	}
	if creds.ClientSecret != "" {
		req.BasicUser = creds.ClientID
		req.BasicPassword = creds.ClientSecret
	}

	issued := a.config.Now()
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAuthentication, op, err)
	}

	ts, err := parseTokenResponse(resp.Body, issued)
	if err != nil {
		return nil, err
	}
	if ts.RefreshToken == "" {
		ts.RefreshToken = keepRefresh
	}

	a.mu.Lock()
	a.token = ts
	a.mu.Unlock()

	out := *ts
	return &out, nil
}

// EnsureValidToken returns a usable access token, renewing it first when it
// is missing or expires within the refresh window. Concurrent callers share
// one renewal.
func (a *Authority) EnsureValidToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()

	if tok != nil && !tok.ExpiresWithin(a.config.Now(), a.config.RefreshWindow) {
		return tok.AccessToken, nil
	}
	return a.renew(ctx, "")
}

// Renew forces a renewal after the remote side rejected stale. When another
// caller has already replaced stale, the new token is returned without a
// round trip.
func (a *Authority) Renew(ctx context.Context, stale string) (string, error) {
	return a.renew(ctx, stale)
}

func (a *Authority) renew(ctx context.Context, stale string) (string, error) {
	ch := a.renewals.DoChan("renew", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.RenewTimeout)
		defer cancel()
		return a.doRenew(rctx, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *Authority) doRenew(ctx context.Context, stale string) (string, error) {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()

	if tok != nil && tok.AccessToken != stale &&
		!tok.ExpiresWithin(a.config.Now(), a.config.RefreshWindow) {
		return tok.AccessToken, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		ts, err := a.RefreshAccessToken(ctx)
		if err == nil {
			return ts.AccessToken, nil
		}
		if a.config.Grant != GrantClientCredentials {
			return "", err
		}
	}

	if a.config.Grant == GrantClientCredentials {
		ts, err := a.AuthenticateClientCredentials(ctx)
		if err != nil {
			return "", err
		}
		return ts.AccessToken, nil
	}

	if tok != nil {
		a.clear()
		return "", ErrReauthenticationRequired
	}
	return "", ErrNotAuthenticated
}

// Logout revokes the session remotely on a best-effort basis and always
// clears local token state.
func (a *Authority) Logout(ctx context.Context) {
	a.mu.Lock()
	tok := a.token
	a.token = nil
	a.mu.Unlock()

	if tok == nil {
		return
	}

	form := url.Values{
		"client_id":       {a.config.Credentials.ClientID},
		"token":           {tok.AccessToken},
		"token_type_hint": {"access_token"},
	}
	if tok.IDToken != "" {
		form.Set("id_token_hint", tok.IDToken)
	}
	_, _ = a.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   a.config.Credentials.LogoutURL(),
		Form:   form,
		Bearer: tok.AccessToken,
	})
}

// Token returns a copy of the held token set.
func (a *Authority) Token() (TokenSet, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.token == nil {
		return TokenSet{}, false
	}
	return *a.token, true
}

// SetToken installs a token set obtained elsewhere, such as one restored by
// the operator CLI.
func (a *Authority) SetToken(ts TokenSet) {
	a.mu.Lock()
	a.token = &ts
	a.mu.Unlock()
}

func (a *Authority) clear() {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()
}
