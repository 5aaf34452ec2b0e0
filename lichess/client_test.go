package lichess

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// staticTokens hands out a fixed access token, or an error.
type staticTokens struct {
	token string
	err   error
}

func (s *staticTokens) ValidAccessToken(ctx context.Context, sessionID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewClient(&staticTokens{token: "test-token"}, WithBaseURL(ts.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClient_RequiresTokenSource(t *testing.T) {
	if _, err := NewClient(nil); err == nil {
		t.Error("NewClient(nil) should fail")
	}
}

func TestFetchProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/account" {
			t.Errorf("path = %q, want /api/account", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "thibault",
			"username": "Thibault",
			"createdAt": 1290415680000,
			"perfs": {"blitz": {"rating": 1792, "games": 12345}}
		}`))
	})

	profile, err := client.FetchProfile(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if profile.ID != "thibault" || profile.Username != "Thibault" {
		t.Errorf("profile = %+v", profile)
	}
	if profile.Perfs["blitz"].Rating != 1792 {
		t.Errorf("blitz rating = %d, want 1792", profile.Perfs["blitz"].Rating)
	}
}

func TestFetchEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/account/email" {
			t.Errorf("path = %q, want /api/account/email", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"email": "thibault@example.com"}`))
	})

	email, err := client.FetchEmail(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FetchEmail() error = %v", err)
	}
	if email != "thibault@example.com" {
		t.Errorf("email = %q", email)
	}
}

func TestFetchPreferences(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"prefs": {"dark": true, "theme": "blue", "moretime": 8}}`))
	})

	prefs, err := client.FetchPreferences(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FetchPreferences() error = %v", err)
	}
	if !prefs.Dark {
		t.Error("dark = false, want true")
	}
	if prefs.Theme != "blue" {
		t.Errorf("theme = %q, want blue", prefs.Theme)
	}
	if _, ok := prefs.Prefs["moretime"]; !ok {
		t.Error("raw prefs should keep unmapped keys")
	}
}

func TestFetchKidModeStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/account/kid" {
			t.Errorf("path = %q, want /api/account/kid", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"kid": true}`))
	})

	kid, err := client.FetchKidModeStatus(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FetchKidModeStatus() error = %v", err)
	}
	if !kid {
		t.Error("kid = false, want true")
	}
}

func TestFetchGames_NDJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/games/user/thibault" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("max"); got != "2" {
			t.Errorf("max = %q, want 2", got)
		}
		if got := r.Header.Get("Accept"); got != "application/x-ndjson" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"id":"q7ZvsdUF","rated":true,"speed":"blitz","status":"draw"}
{"id":"abcd1234","rated":false,"speed":"bullet","status":"mate","winner":"white"}
`))
	})

	games, err := client.FetchGames(context.Background(), "sess-1", "thibault", 2)
	if err != nil {
		t.Fatalf("FetchGames() error = %v", err)
	}
	if len(games) != 2 {
		t.Fatalf("len(games) = %d, want 2", len(games))
	}
	if games[0].ID != "q7ZvsdUF" || !games[0].Rated {
		t.Errorf("games[0] = %+v", games[0])
	}
	if games[1].Winner != "white" {
		t.Errorf("games[1].Winner = %q, want white", games[1].Winner)
	}
}

func TestFetchGames_SkipsBlankLines(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"id\":\"one\"}\n\n{\"id\":\"two\"}\n"))
	})

	games, err := client.FetchGames(context.Background(), "sess-1", "thibault", 0)
	if err != nil {
		t.Fatalf("FetchGames() error = %v", err)
	}
	if len(games) != 2 {
		t.Errorf("len(games) = %d, want 2", len(games))
	}
}

func TestClient_TokenSourceErrorPropagates(t *testing.T) {
	wantErr := errors.New("session expired")
	client, err := NewClient(&staticTokens{err: wantErr})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.FetchProfile(context.Background(), "sess-1"); !errors.Is(err, wantErr) {
		t.Errorf("FetchProfile() error = %v, want token source error", err)
	}
	if _, err := client.FetchGames(context.Background(), "sess-1", "thibault", 1); !errors.Is(err, wantErr) {
		t.Errorf("FetchGames() error = %v, want token source error", err)
	}
}

func TestClient_UpstreamErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusUnauthorized)
	})

	if _, err := client.FetchProfile(context.Background(), "sess-1"); err == nil {
		t.Error("FetchProfile() should fail on non-200")
	}
}
