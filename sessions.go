package lichessauth

import (
	"context"
	"errors"

	"github.com/blunderboard/lichessauth/instrumentation"
	"github.com/blunderboard/lichessauth/security"
	"github.com/blunderboard/lichessauth/storage"
)

// Session invalidation reasons used in audit events and metrics.
const (
	revokeReasonLogout        = "logout"
	revokeReasonRefreshFailed = "refresh_failed"
)

// IsAuthenticated reports whether the session holds, or can refresh to,
// a valid access token. An expired token triggers the same refresh
// attempt ValidAccessToken performs, so a dead refresh token flips the
// answer to false and removes the session.
func (s *Server) IsAuthenticated(ctx context.Context, sessionID string) bool {
	_, err := s.ValidAccessToken(ctx, sessionID)
	return err == nil
}

// Session returns a copy of the session for the given ID, or
// ErrNotAuthenticated if none exists.
func (s *Server) Session(ctx context.Context, sessionID string) (*storage.Session, error) {
	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return session, nil
}

// ValidAccessToken returns an access token guaranteed to be valid for
// at least the configured refresh margin. An expired token is refreshed
// through the provider first; concurrent callers on the same session
// coalesce onto a single refresh. If the refresh fails the session is
// invalidated and ErrSessionExpired is returned.
func (s *Server) ValidAccessToken(ctx context.Context, sessionID string) (string, error) {
	ctx, span := s.startFlowSpan(ctx, "valid_access_token")
	defer span.End()

	if sessionID == "" {
		return "", ErrNotAuthenticated
	}

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return "", ErrNotAuthenticated
		}
		instrumentation.RecordError(span, err)
		return "", err
	}

	// Fast path: token still comfortably valid.
	if !security.NeedsRefresh(session.Token.Expiry, s.Config.RefreshMargin, s.now()) {
		instrumentation.SetSpanSuccess(span)
		return session.Token.AccessToken, nil
	}

	token, err := s.refreshSession(ctx, sessionID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}

	instrumentation.SetSpanSuccess(span)
	return token, nil
}

// refreshSession refreshes the session's token under the per-session
// lock. The caller that wins the lock performs the provider call; the
// rest re-read the stored session and return the refreshed token.
func (s *Server) refreshSession(ctx context.Context, sessionID string) (string, error) {
	lock := s.acquireRefreshLock(sessionID)
	defer s.releaseRefreshLock(sessionID, lock)

	// Re-read under the lock. Another caller may have completed the
	// refresh, or failed it and deleted the session.
	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return "", ErrSessionExpired
		}
		return "", err
	}

	if !security.NeedsRefresh(session.Token.Expiry, s.Config.RefreshMargin, s.now()) {
		if m := s.metrics(); m != nil {
			m.RecordTokenRefresh(ctx, true, true)
		}
		return session.Token.AccessToken, nil
	}

	if session.Token.RefreshToken == "" {
		s.Logger.Info("Session token expired with no refresh token", "user_id", session.User.ID)
		return "", s.expireSession(ctx, sessionID, &session.User)
	}

	newToken, err := s.provider.Refresh(ctx, session.Token.RefreshToken)
	if m := s.metrics(); m != nil {
		m.RecordTokenRefresh(ctx, err == nil, false)
	}
	if err != nil {
		s.Logger.Warn("Token refresh failed, invalidating session",
			"user_id", session.User.ID,
			"error", err)
		return "", s.expireSession(ctx, sessionID, &session.User)
	}

	// Providers may or may not rotate the refresh token; keep the old
	// one when the response omits it.
	rotated := newToken.RefreshToken != "" && newToken.RefreshToken != session.Token.RefreshToken

	err = s.sessionStore.UpdateSession(ctx, sessionID, func(sess *storage.Session) error {
		if newToken.RefreshToken == "" {
			newToken.RefreshToken = sess.Token.RefreshToken
		}
		sess.Token = newToken
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return "", ErrSessionExpired
		}
		return "", err
	}

	s.Auditor.LogTokenRefreshed(session.User.ID, sessionID, rotated)
	s.Logger.Debug("Token refreshed", "user_id", session.User.ID, "rotated", rotated)

	return newToken.AccessToken, nil
}

// expireSession removes a session whose token could not be refreshed
// and returns ErrSessionExpired.
func (s *Server) expireSession(ctx context.Context, sessionID string, user *storage.User) error {
	if err := s.sessionStore.DeleteSession(ctx, sessionID); err != nil {
		s.Logger.Error("Failed to delete expired session", "error", err)
		return err
	}

	if m := s.metrics(); m != nil {
		m.RecordSessionRevoked(ctx, revokeReasonRefreshFailed)
	}
	s.Auditor.LogSessionRevoked(user.ID, sessionID, revokeReasonRefreshFailed)

	return ErrSessionExpired
}

// Logout invalidates the session. With Config.RevokeOnLogout set, the
// access token is also revoked at Lichess; a failed revocation still
// removes the local session. Logging out an unknown session is a no-op.
func (s *Server) Logout(ctx context.Context, sessionID string) error {
	ctx, span := s.startFlowSpan(ctx, "logout")
	defer span.End()

	if sessionID == "" {
		return nil
	}

	session, err := s.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		instrumentation.RecordError(span, err)
		return err
	}

	if s.Config.RevokeOnLogout {
		if err := s.provider.Revoke(ctx, session.Token.AccessToken); err != nil {
			s.Logger.Warn("Provider-side token revocation failed",
				"user_id", session.User.ID,
				"error", err)
		}
	}

	if err := s.sessionStore.DeleteSession(ctx, sessionID); err != nil {
		instrumentation.RecordError(span, err)
		return err
	}

	if m := s.metrics(); m != nil {
		m.RecordSessionRevoked(ctx, revokeReasonLogout)
	}
	s.Auditor.LogSessionRevoked(session.User.ID, sessionID, revokeReasonLogout)
	s.Logger.Info("Session logged out", "user_id", session.User.ID)

	instrumentation.SetSpanSuccess(span)
	return nil
}
