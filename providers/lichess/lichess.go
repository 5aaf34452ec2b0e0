// Package lichess implements the Provider interface against the Lichess
// OAuth endpoints. Lichess treats browser and server applications alike
// as public clients: there is no client secret, and every authorization
// request must carry a PKCE challenge.
package lichess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/providers"
	"github.com/blunderboard/lichessauth/storage"
)

var _ providers.Provider = (*Provider)(nil)

const providerName = "lichess"

const (
	// AuthURL is the Lichess authorization endpoint.
	AuthURL = "https://lichess.org/oauth"

	// TokenURL is the Lichess token endpoint, also used for revocation
	// via DELETE.
	TokenURL = "https://lichess.org/api/token"

	accountEndpoint = "https://lichess.org/api/account"
)

// DefaultScopes request read access to the account email and
// preferences.
var DefaultScopes = []string{"email:read", "preference:read"}

// Provider implements providers.Provider for Lichess.
type Provider struct {
	*oauth2.Config
	httpClient     *http.Client
	requestTimeout time.Duration
	accountURL     string
}

// Config holds Lichess OAuth configuration.
type Config struct {
	// ClientID identifies the application. Lichess accepts any unique
	// string; no registration step exists.
	ClientID string

	// RedirectURL is the OAuth callback URL.
	RedirectURL string

	// Scopes are optional custom scopes (defaults to DefaultScopes).
	Scopes []string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// RequestTimeout is the timeout for Lichess API calls (default: 10s).
	RequestTimeout time.Duration
}

// NewProvider creates a new Lichess OAuth provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	scopesCopy := make([]string, len(scopes))
	copy(scopesCopy, scopes)

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Provider{
		Config: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopesCopy,
			Endpoint: oauth2.Endpoint{
				AuthURL:  AuthURL,
				TokenURL: TokenURL,
				// Lichess expects client_id in the request body, not
				// basic auth, since public clients have no secret.
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		accountURL:     accountEndpoint,
	}, nil
}

// Name returns "lichess".
func (p *Provider) Name() string {
	return providerName
}

// AuthorizationURL builds the authorization redirect URL with the state
// and S256 code challenge.
func (p *Provider) AuthorizationURL(state, codeChallenge string) string {
	return p.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the authorization code for a token, proving
// possession of the PKCE verifier.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	token, err := p.Config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

// Refresh obtains a fresh token using the refresh token grant.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	src := p.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return token, nil
}

// Revoke invalidates the access token. Lichess revokes the token
// presented as the bearer credential of a DELETE to the token endpoint.
func (p *Provider) Revoke(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return fmt.Errorf("access token is required")
	}

	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.Endpoint.TokenURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create revocation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation failed with status %d", resp.StatusCode)
	}
	return nil
}

// accountResponse is the subset of the Lichess account document the
// login flow needs.
type accountResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Account fetches the authenticated user's identity.
func (p *Provider) Account(ctx context.Context, accessToken string) (*storage.User, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}

	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.accountURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account request failed with status %d", resp.StatusCode)
	}

	var account accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account response: %w", err)
	}
	if account.ID == "" {
		return nil, fmt.Errorf("account response missing user id")
	}

	return &storage.User{
		ID:       account.ID,
		Username: account.Username,
	}, nil
}

// requestContext bounds a provider call with the configured timeout and
// routes oauth2 traffic through the provider's HTTP client.
func (p *Provider) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return context.WithTimeout(ctx, p.requestTimeout)
}
