package lichess

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(&Config{
		ClientID:    "blunderboard",
		RedirectURL: "https://app.example.com/auth/lichess/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p
}

func TestNewProvider_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "missing client ID", cfg: &Config{RedirectURL: "https://app.example.com/cb"}},
		{name: "missing redirect URL", cfg: &Config{ClientID: "app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Error("NewProvider() should have failed")
			}
		})
	}
}

func TestNewProvider_Defaults(t *testing.T) {
	p := newTestProvider(t)

	if p.Name() != "lichess" {
		t.Errorf("Name() = %q, want %q", p.Name(), "lichess")
	}
	if len(p.Scopes) != len(DefaultScopes) {
		t.Errorf("Scopes = %v, want defaults %v", p.Scopes, DefaultScopes)
	}
	if p.Endpoint.AuthURL != AuthURL {
		t.Errorf("AuthURL = %q, want %q", p.Endpoint.AuthURL, AuthURL)
	}
	if p.ClientSecret != "" {
		t.Error("public client must not carry a secret")
	}
}

func TestAuthorizationURL(t *testing.T) {
	p := newTestProvider(t)

	raw := p.AuthorizationURL("state-xyz", "challenge-abc")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("AuthorizationURL() produced unparseable URL: %v", err)
	}

	q := u.Query()
	checks := map[string]string{
		"response_type":         "code",
		"client_id":             "blunderboard",
		"state":                 "state-xyz",
		"code_challenge":        "challenge-abc",
		"code_challenge_method": "S256",
		"redirect_uri":          "https://app.example.com/auth/lichess/callback",
	}
	for param, want := range checks {
		if got := q.Get(param); got != want {
			t.Errorf("query param %s = %q, want %q", param, got, want)
		}
	}
	if q.Get("scope") == "" {
		t.Error("authorization URL should carry the requested scopes")
	}
}

func TestExchange(t *testing.T) {
	var gotVerifier, gotCode string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		gotCode = r.FormValue("code")
		gotVerifier = r.FormValue("code_verifier")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","access_token":"lio_abc","refresh_token":"ref_def","expires_in":3600}`)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.Endpoint.TokenURL = ts.URL

	token, err := p.Exchange(context.Background(), "auth-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if gotCode != "auth-code" {
		t.Errorf("exchanged code = %q, want %q", gotCode, "auth-code")
	}
	if gotVerifier != "the-verifier" {
		t.Errorf("code_verifier = %q, want %q", gotVerifier, "the-verifier")
	}
	if token.AccessToken != "lio_abc" {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, "lio_abc")
	}
	if token.RefreshToken != "ref_def" {
		t.Errorf("RefreshToken = %q, want %q", token.RefreshToken, "ref_def")
	}
	if token.Expiry.IsZero() {
		t.Error("expires_in should have been mapped to an absolute expiry")
	}
}

func TestExchange_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"code expired"}`)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.Endpoint.TokenURL = ts.URL

	if _, err := p.Exchange(context.Background(), "stale-code", "verifier"); err == nil {
		t.Error("Exchange() should have failed")
	}
}

func TestRefresh(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", r.FormValue("grant_type"))
		}
		if r.FormValue("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q, want old-refresh", r.FormValue("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer","access_token":"lio_new","refresh_token":"ref_new","expires_in":3600}`)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.Endpoint.TokenURL = ts.URL

	token, err := p.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if token.AccessToken != "lio_new" {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, "lio_new")
	}
	if token.RefreshToken != "ref_new" {
		t.Errorf("RefreshToken = %q, want rotated value %q", token.RefreshToken, "ref_new")
	}
}

func TestRefresh_EmptyToken(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.Refresh(context.Background(), ""); err == nil {
		t.Error("Refresh() should reject an empty refresh token")
	}
}

func TestRevoke(t *testing.T) {
	var gotMethod, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.Endpoint.TokenURL = ts.URL

	if err := p.Revoke(context.Background(), "lio_abc"); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotAuth != "Bearer lio_abc" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer lio_abc")
	}
}

func TestRevoke_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.Endpoint.TokenURL = ts.URL

	if err := p.Revoke(context.Background(), "lio_abc"); err == nil {
		t.Error("Revoke() should have failed")
	}
}

func TestAccount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer lio_abc" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer lio_abc")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"thibault","username":"Thibault","perfs":{}}`)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.accountURL = ts.URL

	user, err := p.Account(context.Background(), "lio_abc")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if user.ID != "thibault" {
		t.Errorf("ID = %q, want %q", user.ID, "thibault")
	}
	if user.Username != "Thibault" {
		t.Errorf("Username = %q, want %q", user.Username, "Thibault")
	}
}

func TestAccount_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.accountURL = ts.URL

	if _, err := p.Account(context.Background(), "revoked-token"); err == nil {
		t.Error("Account() should have failed")
	}
}

func TestAccount_MissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"username":"NoID"}`)
	}))
	defer ts.Close()

	p := newTestProvider(t)
	p.accountURL = ts.URL

	if _, err := p.Account(context.Background(), "lio_abc"); err == nil {
		t.Error("Account() should reject a response without a user id")
	}
}
