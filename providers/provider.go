// Package providers defines the interface to the OAuth authorization
// server side of the login flow. The lichess subpackage implements it
// against the real Lichess endpoints; the mock subpackage implements it
// for tests.
package providers

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/storage"
)

// Provider abstracts the authorization server operations the login flow
// needs. All token parameters and results use golang.org/x/oauth2 types.
type Provider interface {
	// Name returns the provider name (e.g. "lichess").
	Name() string

	// AuthorizationURL builds the URL to redirect the user agent to,
	// carrying the state and the S256 code challenge.
	AuthorizationURL(state, codeChallenge string) string

	// Exchange trades an authorization code and its PKCE verifier for a
	// token at the token endpoint.
	Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)

	// Refresh obtains a fresh access token using a refresh token. The
	// returned token may carry a rotated refresh token.
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)

	// Revoke invalidates an access token at the provider.
	Revoke(ctx context.Context, accessToken string) error

	// Account fetches the identity of the user the access token belongs to.
	Account(ctx context.Context, accessToken string) (*storage.User, error)
}
