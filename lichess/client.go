// Package lichess is a small authenticated client for the Lichess API.
// It consumes the session contract only: callers hand it a session ID
// and it obtains a valid bearer token for every request, so token
// refresh stays invisible at this layer.
package lichess

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/blunderboard/lichessauth/instrumentation"
)

// DefaultBaseURL is the Lichess API root.
const DefaultBaseURL = "https://lichess.org"

// TokenSource supplies a valid access token for a session. Implemented
// by lichessauth.Server.
type TokenSource interface {
	ValidAccessToken(ctx context.Context, sessionID string) (string, error)
}

// Client calls Lichess resource endpoints on behalf of a session.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithInstrumentation enables API call metrics.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(c *Client) {
		if inst != nil {
			c.metrics = inst.Metrics()
		}
	}
}

// NewClient creates a Lichess API client backed by the given token
// source.
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	c := &Client{
		baseURL:    DefaultBaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Profile is the public account document.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Title     string `json:"title,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	Perfs     map[string]struct {
		Rating int `json:"rating"`
		Games  int `json:"games"`
	} `json:"perfs"`
}

// FetchProfile returns the session user's account profile.
func (c *Client) FetchProfile(ctx context.Context, sessionID string) (*Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, sessionID, "/api/account", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// FetchEmail returns the account email address (requires email:read).
func (c *Client) FetchEmail(ctx context.Context, sessionID string) (string, error) {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.getJSON(ctx, sessionID, "/api/account/email", &body); err != nil {
		return "", err
	}
	return body.Email, nil
}

// Preferences is the account preference document (requires
// preference:read).
type Preferences struct {
	Dark  bool   `json:"dark"`
	Theme string `json:"theme"`
	Prefs map[string]any
}

// FetchPreferences returns the account preferences.
func (c *Client) FetchPreferences(ctx context.Context, sessionID string) (*Preferences, error) {
	var body struct {
		Prefs map[string]any `json:"prefs"`
	}
	if err := c.getJSON(ctx, sessionID, "/api/account/preferences", &body); err != nil {
		return nil, err
	}

	prefs := &Preferences{Prefs: body.Prefs}
	if v, ok := body.Prefs["dark"].(bool); ok {
		prefs.Dark = v
	}
	if v, ok := body.Prefs["theme"].(string); ok {
		prefs.Theme = v
	}
	return prefs, nil
}

// FetchKidModeStatus reports whether kid mode is enabled on the account.
func (c *Client) FetchKidModeStatus(ctx context.Context, sessionID string) (bool, error) {
	var body struct {
		Kid bool `json:"kid"`
	}
	if err := c.getJSON(ctx, sessionID, "/api/account/kid", &body); err != nil {
		return false, err
	}
	return body.Kid, nil
}

// Game is one entry of a user's game export.
type Game struct {
	ID      string `json:"id"`
	Rated   bool   `json:"rated"`
	Speed   string `json:"speed"`
	Status  string `json:"status"`
	Winner  string `json:"winner,omitempty"`
	Moves   string `json:"moves,omitempty"`
	Players map[string]struct {
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
		Rating int `json:"rating"`
	} `json:"players"`
}

// FetchGames streams up to max recent games of the given user. Lichess
// serves the export as NDJSON, one game document per line.
func (c *Client) FetchGames(ctx context.Context, sessionID, username string, max int) ([]Game, error) {
	token, err := c.tokens.ValidAccessToken(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/games/user/%s", c.baseURL, url.PathEscape(username))
	if max > 0 {
		endpoint += fmt.Sprintf("?max=%d", max)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordCall(ctx, "games", 0, start, err)
		return nil, fmt.Errorf("games request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("games request failed with status %d", resp.StatusCode)
		c.recordCall(ctx, "games", resp.StatusCode, start, err)
		return nil, err
	}
	c.recordCall(ctx, "games", resp.StatusCode, start, nil)

	var games []Game
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var game Game
		if err := json.Unmarshal(line, &game); err != nil {
			return nil, fmt.Errorf("failed to decode game line: %w", err)
		}
		games = append(games, game)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read games stream: %w", err)
	}

	return games, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, sessionID, path string, out any) error {
	token, err := c.tokens.ValidAccessToken(ctx, sessionID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordCall(ctx, path, 0, start, err)
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("request to %s failed with status %d", path, resp.StatusCode)
		c.recordCall(ctx, path, resp.StatusCode, start, err)
		c.logger.Warn("lichess api request failed",
			"path", path,
			"status", resp.StatusCode)
		return err
	}
	c.recordCall(ctx, path, resp.StatusCode, start, nil)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// recordCall records API call metrics when instrumentation is set.
func (c *Client) recordCall(ctx context.Context, operation string, statusCode int, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordProviderAPICall(ctx, operation, statusCode, float64(time.Since(start).Milliseconds()), err)
}
