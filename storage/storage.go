// Package storage defines interfaces for persisting pending authorization
// attempts and authenticated sessions. It supports various backend
// implementations; the in-memory backend lives in storage/memory.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Sentinel errors returned by store implementations. Callers match them
// with errors.Is and map them onto protocol-level failures.
var (
	// ErrPendingNotFound indicates no pending authorization exists for the
	// given state, either because it was never issued, already consumed,
	// or swept after expiry.
	ErrPendingNotFound = errors.New("pending authorization not found")

	// ErrSessionNotFound indicates no session exists for the given ID.
	ErrSessionNotFound = errors.New("session not found")
)

// PendingAuthorization is one in-flight login attempt, created when the
// user agent is redirected to Lichess and consumed exactly once when the
// callback returns.
type PendingAuthorization struct {
	// State is the opaque anti-CSRF token keying this record.
	State string

	// CodeVerifier is the PKCE secret for this attempt. It leaves the
	// store only inside the final token exchange request.
	CodeVerifier string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the attempt has outlived its TTL at the given
// instant.
func (p *PendingAuthorization) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// User is the minimal identity established during login.
type User struct {
	// ID is the stable Lichess user id (lowercase username).
	ID string `json:"id"`

	// Username is the display form of the name.
	Username string `json:"username"`
}

// Session is one authenticated user's credential state. The struct is
// owned by the SessionStore; callers receive copies and mutate stored
// state only through UpdateSession.
type Session struct {
	// Token carries the bearer access token, optional refresh token and
	// the absolute expiry derived from the token response.
	Token *oauth2.Token

	User User

	CreatedAt time.Time
}

// Clone returns a deep copy so store internals never alias caller-held
// sessions.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Token != nil {
		tok := *s.Token
		dup.Token = &tok
	}
	return &dup
}

// FlowStore manages pending authorization attempts keyed by state.
// All methods accept context.Context for tracing and cancellation.
type FlowStore interface {
	// SavePendingAuthorization stores a pending attempt under its state.
	SavePendingAuthorization(ctx context.Context, pending *PendingAuthorization) error

	// ConsumePendingAuthorization atomically removes and returns the
	// pending attempt for the given state. A record that is absent,
	// already consumed, or expired yields ErrPendingNotFound.
	//
	// Atomicity closes the race where two concurrent callbacks both
	// observe the record before either deletes it: exactly one caller
	// can ever receive a given attempt.
	ConsumePendingAuthorization(ctx context.Context, state string) (*PendingAuthorization, error)

	// DeletePendingAuthorization removes a pending attempt. Deleting an
	// absent record is not an error.
	DeletePendingAuthorization(ctx context.Context, state string) error
}

// SessionStore manages authenticated sessions keyed by opaque session IDs.
// All methods accept context.Context for tracing and cancellation.
type SessionStore interface {
	// SaveSession persists a session under the given ID.
	SaveSession(ctx context.Context, sessionID string, session *Session) error

	// GetSession returns a copy of the stored session, or
	// ErrSessionNotFound if absent or invalidated.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// DeleteSession removes a session. Idempotent: deleting an absent
	// session is not an error.
	DeleteSession(ctx context.Context, sessionID string) error

	// UpdateSession atomically applies mutate to the stored session.
	// Concurrent readers observe either the pre- or post-update value,
	// never a partial write. Returns ErrSessionNotFound if the session
	// is absent; if mutate returns an error the session is left
	// unchanged and the error is propagated.
	UpdateSession(ctx context.Context, sessionID string, mutate func(*Session) error) error
}
