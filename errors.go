package lichessauth

import (
	"fmt"
	"net/http"
)

// Error kinds returned by the login flow and session lifecycle.
const (
	KindInvalidOrExpiredState = "invalid_or_expired_state"
	KindAuthorizationDenied   = "authorization_denied"
	KindTokenExchangeFailed   = "token_exchange_failed"
	KindNotAuthenticated      = "not_authenticated"
	KindSessionExpired        = "session_expired"
	KindRateLimitExceeded     = "rate_limit_exceeded"
)

// AuthError describes a flow or session failure. Kind is stable and
// machine-matchable; Description is for logs and never contains
// upstream response bodies verbatim beyond what is safe to show.
type AuthError struct {
	Kind        string
	Description string
	Status      int
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Description == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// Is matches any AuthError with the same Kind, so callers can test
// errors.Is(err, ErrSessionExpired) against enriched instances.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind, description string, status int) *AuthError {
	return &AuthError{
		Kind:        kind,
		Description: description,
		Status:      status,
	}
}

// Sentinel instances for errors.Is matching.
var (
	// ErrInvalidState indicates the callback carried a state that was
	// never issued, already consumed, or expired.
	ErrInvalidState = NewAuthError(KindInvalidOrExpiredState, "unknown or expired state", http.StatusBadRequest)

	// ErrAuthorizationDenied indicates the user or Lichess declined the
	// authorization request.
	ErrAuthorizationDenied = NewAuthError(KindAuthorizationDenied, "authorization denied", http.StatusForbidden)

	// ErrTokenExchangeFailed indicates the code-for-token exchange or
	// the follow-up identity lookup failed.
	ErrTokenExchangeFailed = NewAuthError(KindTokenExchangeFailed, "token exchange failed", http.StatusBadGateway)

	// ErrNotAuthenticated indicates no session exists for the presented
	// session ID.
	ErrNotAuthenticated = NewAuthError(KindNotAuthenticated, "not authenticated", http.StatusUnauthorized)

	// ErrSessionExpired indicates the session's token expired and could
	// not be refreshed; the session has been invalidated.
	ErrSessionExpired = NewAuthError(KindSessionExpired, "session expired", http.StatusUnauthorized)

	// ErrRateLimited indicates the caller exceeded the request rate.
	ErrRateLimited = NewAuthError(KindRateLimitExceeded, "too many requests", http.StatusTooManyRequests)
)

// invalidStateError returns an ErrInvalidState variant with extra
// context for logs.
func invalidStateError(description string) *AuthError {
	return NewAuthError(KindInvalidOrExpiredState, description, http.StatusBadRequest)
}

// authorizationDeniedError returns an ErrAuthorizationDenied variant
// carrying the provider's error code.
func authorizationDeniedError(description string) *AuthError {
	return NewAuthError(KindAuthorizationDenied, description, http.StatusForbidden)
}

// tokenExchangeError returns an ErrTokenExchangeFailed variant with
// extra context for logs.
func tokenExchangeError(description string) *AuthError {
	return NewAuthError(KindTokenExchangeFailed, description, http.StatusBadGateway)
}
