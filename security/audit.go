package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. User IDs
// are hashed before they reach the log stream.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	SessionID string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed identifiers.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"session_id_hash", hashForLogging(event.SessionID),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogLoginStarted logs the start of an authorization flow.
func (a *Auditor) LogLoginStarted(ipAddress string) {
	a.LogEvent(Event{
		Type:      "login_started",
		IPAddress: ipAddress,
	})
}

// LogSessionCreated logs a successful login.
func (a *Auditor) LogSessionCreated(userID, sessionID, ipAddress string) {
	a.LogEvent(Event{
		Type:      "session_created",
		UserID:    userID,
		SessionID: sessionID,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs an authentication failure.
func (a *Auditor) LogAuthFailure(ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "auth_failure",
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogTokenRefreshed logs a token refresh, noting whether the refresh
// token was rotated by the authorization server.
func (a *Auditor) LogTokenRefreshed(userID, sessionID string, rotated bool) {
	a.LogEvent(Event{
		Type:      "token_refreshed",
		UserID:    userID,
		SessionID: sessionID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogSessionRevoked logs a session invalidation with its reason
// (logout, refresh_failed).
func (a *Auditor) LogSessionRevoked(userID, sessionID, reason string) {
	a.LogEvent(Event{
		Type:      "session_revoked",
		UserID:    userID,
		SessionID: sessionID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
