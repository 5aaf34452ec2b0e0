package lichessauth

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blunderboard/lichessauth/instrumentation"
	"github.com/blunderboard/lichessauth/pkce"
	"github.com/blunderboard/lichessauth/storage"
)

// BeginLogin starts a new authorization attempt. It generates the state
// and PKCE verifier, records the attempt under its state, and returns
// the Lichess authorization URL to redirect the user agent to.
func (s *Server) BeginLogin(ctx context.Context) (string, error) {
	ctx, span := s.startFlowSpan(ctx, "begin_login")
	defer span.End()

	state := generateRandomToken()
	verifier := pkce.NewVerifier()
	challenge := pkce.S256Challenge(verifier)

	now := s.now()
	pending := &storage.PendingAuthorization{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.Config.PendingTTL),
	}

	if err := s.flowStore.SavePendingAuthorization(ctx, pending); err != nil {
		instrumentation.RecordError(span, err)
		s.Logger.Error("Failed to save pending authorization", "error", err)
		return "", err
	}

	if m := s.metrics(); m != nil {
		m.RecordLoginStarted(ctx)
	}
	instrumentation.SetSpanSuccess(span)
	s.Logger.Debug("Login flow started", "expires_at", pending.ExpiresAt)

	return s.provider.AuthorizationURL(state, challenge), nil
}

// CompleteLogin finishes an authorization attempt from the callback
// parameters. On success it persists a session and returns its ID.
//
// The pending record is consumed exactly once regardless of outcome: a
// replayed or concurrent callback with the same state fails with
// ErrInvalidState, and a denied or failed attempt cannot be retried
// under the old state. No session is created on any failure path.
func (s *Server) CompleteLogin(ctx context.Context, code, state, errParam string) (string, error) {
	ctx, span := s.startFlowSpan(ctx, "complete_login")
	defer span.End()

	instrumentation.SetSpanAttributes(span,
		attribute.Bool(instrumentation.AttrStatePresent, state != ""),
		attribute.Bool(instrumentation.AttrCodePresent, code != ""),
	)

	sessionID, err := s.completeLogin(ctx, code, state, errParam)
	if m := s.metrics(); m != nil {
		m.RecordCallbackProcessed(ctx, err == nil)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}

	instrumentation.SetSpanSuccess(span)
	return sessionID, nil
}

func (s *Server) completeLogin(ctx context.Context, code, state, errParam string) (string, error) {
	pending, err := s.flowStore.ConsumePendingAuthorization(ctx, state)
	if err != nil {
		if m := s.metrics(); m != nil {
			m.RecordStateValidationFailed(ctx)
		}
		s.Logger.Warn("Callback with unknown or expired state", "error", err)
		if errors.Is(err, storage.ErrPendingNotFound) {
			return "", invalidStateError("state was never issued, already used, or expired")
		}
		return "", err
	}

	// The state is burned at this point. Denials and malformed
	// callbacks end the attempt for good.
	if errParam != "" {
		s.Logger.Info("Authorization denied by provider", "provider_error", errParam)
		return "", authorizationDeniedError("provider returned error: " + errParam)
	}
	if code == "" {
		s.Logger.Warn("Callback missing authorization code")
		return "", authorizationDeniedError("authorization response missing code")
	}

	token, err := s.provider.Exchange(ctx, code, pending.CodeVerifier)
	if m := s.metrics(); m != nil {
		m.RecordTokenExchange(ctx, err == nil)
	}
	if err != nil {
		// Upstream status and body stay in server logs; callers see
		// only the kind.
		s.Logger.Error("Token exchange failed", "error", err)
		return "", tokenExchangeError("authorization code exchange failed")
	}

	user, err := s.provider.Account(ctx, token.AccessToken)
	if err != nil {
		s.Logger.Error("Identity lookup failed after exchange", "error", err)
		return "", tokenExchangeError("identity lookup failed")
	}

	sessionID := generateRandomToken()
	session := &storage.Session{
		Token:     token,
		User:      *user,
		CreatedAt: s.now(),
	}

	if err := s.sessionStore.SaveSession(ctx, sessionID, session); err != nil {
		s.Logger.Error("Failed to persist session", "error", err)
		return "", err
	}

	s.Logger.Info("Login completed", "user_id", user.ID)
	return sessionID, nil
}

// startFlowSpan starts a tracing span for a flow operation, falling
// back to the ambient span when tracing is not configured.
func (s *Server) startFlowSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "flow."+operation)
}
