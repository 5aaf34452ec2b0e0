// Package mock provides a mock implementation of the Provider interface
// for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/providers"
	"github.com/blunderboard/lichessauth/storage"
)

var _ providers.Provider = (*Provider)(nil)

// Provider is a configurable mock of providers.Provider. Each method
// delegates to the corresponding Func field and counts its calls.
type Provider struct {
	NameFunc             func() string
	AuthorizationURLFunc func(state, codeChallenge string) string
	ExchangeFunc         func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error)
	RefreshFunc          func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	RevokeFunc           func(ctx context.Context, accessToken string) error
	AccountFunc          func(ctx context.Context, accessToken string) (*storage.User, error)

	mu         sync.RWMutex
	callCounts map[string]int
}

// NewProvider creates a mock provider with working defaults.
func NewProvider() *Provider {
	return &Provider{
		callCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		AuthorizationURLFunc: func(state, codeChallenge string) string {
			return fmt.Sprintf("https://mock.example.com/oauth?state=%s&code_challenge=%s&code_challenge_method=S256", state, codeChallenge)
		},
		ExchangeFunc: func(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				TokenType:    "Bearer",
			}, nil
		},
		RefreshFunc: func(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken:  "new-mock-access-token",
				RefreshToken: "new-mock-refresh-token",
				TokenType:    "Bearer",
			}, nil
		},
		RevokeFunc: func(ctx context.Context, accessToken string) error {
			return nil
		},
		AccountFunc: func(ctx context.Context, accessToken string) (*storage.User, error) {
			return &storage.User{ID: "mockuser", Username: "MockUser"}, nil
		},
	}
}

func (m *Provider) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.callCounts == nil {
		m.callCounts = make(map[string]int)
	}
	m.callCounts[method]++
}

// CallCount returns how many times the named method was invoked.
func (m *Provider) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCounts[method]
}

func (m *Provider) Name() string {
	m.recordCall("Name")
	return m.NameFunc()
}

func (m *Provider) AuthorizationURL(state, codeChallenge string) string {
	m.recordCall("AuthorizationURL")
	return m.AuthorizationURLFunc(state, codeChallenge)
}

func (m *Provider) Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	m.recordCall("Exchange")
	return m.ExchangeFunc(ctx, code, codeVerifier)
}

func (m *Provider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	m.recordCall("Refresh")
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *Provider) Revoke(ctx context.Context, accessToken string) error {
	m.recordCall("Revoke")
	return m.RevokeFunc(ctx, accessToken)
}

func (m *Provider) Account(ctx context.Context, accessToken string) (*storage.User, error) {
	m.recordCall("Account")
	return m.AccountFunc(ctx, accessToken)
}
