package lichessauth

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/blunderboard/lichessauth/security"
)

const (
	// DefaultPendingTTL is how long a login attempt may sit between the
	// redirect to Lichess and the callback before its state expires.
	DefaultPendingTTL = 10 * time.Minute

	// DefaultCookieName is the session cookie name.
	DefaultCookieName = "lichessauth_session"
)

// Config holds the authentication service configuration.
type Config struct {
	// ClientID identifies the application to Lichess (required).
	// Lichess has no registration step; any unique string works.
	ClientID string

	// RedirectURL is the absolute callback URL Lichess redirects to
	// after authorization (required). Must match the provider's
	// configured redirect URL.
	RedirectURL string

	// AppURL is where the user agent lands after a successful login.
	AppURL string

	// ErrorURL is where the user agent lands after a failed login. No
	// upstream error detail is appended; failures are explained only in
	// server logs. Defaults to AppURL.
	ErrorURL string

	// PendingTTL bounds the lifetime of an in-flight login attempt.
	// Default: 10 minutes.
	PendingTTL time.Duration

	// RefreshMargin is how far before expiry an access token is treated
	// as expired by ValidAccessToken. Default: security.DefaultRefreshMargin.
	RefreshMargin time.Duration

	// RevokeOnLogout additionally revokes the access token at Lichess
	// when a session is logged out. Revocation failures do not keep the
	// local session alive.
	RevokeOnLogout bool

	// CookieName is the session cookie name. Default: DefaultCookieName.
	CookieName string

	// InsecureCookies drops the Secure attribute from session cookies.
	// Only for plain-HTTP local development.
	InsecureCookies bool

	// RateLimit configures per-IP limiting on the HTTP endpoints.
	RateLimit RateLimitConfig

	// EnableAuditLogging enables security audit logging with hashed
	// identifiers.
	EnableAuditLogging bool

	// Logger for structured logging (optional, slog.Default if nil).
	Logger *slog.Logger
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client ID is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	if !strings.HasPrefix(c.RedirectURL, "https://") && !strings.HasPrefix(c.RedirectURL, "http://") {
		return fmt.Errorf("redirect URL must be an absolute http(s) URL")
	}
	if c.AppURL == "" {
		return fmt.Errorf("app URL is required")
	}
	if c.PendingTTL < 0 {
		return fmt.Errorf("pending TTL cannot be negative")
	}
	if c.RefreshMargin < 0 {
		return fmt.Errorf("refresh margin cannot be negative")
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit burst must be positive when rate limiting is enabled")
	}
	return nil
}

// applyDefaults fills zero values with defaults. Called by New after
// validation.
func (c *Config) applyDefaults() {
	if c.PendingTTL == 0 {
		c.PendingTTL = DefaultPendingTTL
	}
	if c.RefreshMargin == 0 {
		c.RefreshMargin = security.DefaultRefreshMargin
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.ErrorURL == "" {
		c.ErrorURL = c.AppURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
