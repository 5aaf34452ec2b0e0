package lichessauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/blunderboard/lichessauth/internal/util"
	"github.com/blunderboard/lichessauth/storage"
)

// Endpoint paths served by Handler.
const (
	LoginPath    = "/auth/lichess/login"
	CallbackPath = "/auth/lichess/callback"
	LogoutPath   = "/auth/lichess/logout"
	SessionPath  = "/auth/lichess/session"
)

// sessionIDLogLength bounds how much of a session ID reaches the logs.
const sessionIDLogLength = 8

// Handler exposes the login flow over HTTP. It owns cookie handling and
// redirects; all flow decisions live in Server.
type Handler struct {
	server *Server
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates an HTTP handler for the given server.
func NewHandler(server *Server) *Handler {
	h := &Handler{
		server: server,
		logger: server.Logger,
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc(LoginPath, h.handleLogin)
	h.mux.HandleFunc(CallbackPath, h.handleCallback)
	h.mux.HandleFunc(LogoutPath, h.handleLogout)
	h.mux.HandleFunc(SessionPath, h.handleSession)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handleLogin starts a login flow and redirects to Lichess.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, start)
		return
	}

	ip := h.clientIP(r)
	if h.rateLimited(w, r, ip, start) {
		return
	}

	authURL, err := h.server.BeginLogin(r.Context())
	if err != nil {
		h.logger.Error("Failed to begin login", "error", err)
		http.Redirect(w, r, h.server.Config.ErrorURL, http.StatusFound)
		h.recordRequest(r, http.StatusFound, start)
		return
	}

	h.server.Auditor.LogLoginStarted(ip)
	http.Redirect(w, r, authURL, http.StatusFound)
	h.recordRequest(r, http.StatusFound, start)
}

// handleCallback finishes a login flow. Success sets the session cookie
// and lands on AppURL; every failure lands on ErrorURL with no upstream
// detail exposed to the user agent.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, start)
		return
	}

	ip := h.clientIP(r)
	if h.rateLimited(w, r, ip, start) {
		return
	}

	q := r.URL.Query()
	sessionID, err := h.server.CompleteLogin(r.Context(), q.Get("code"), q.Get("state"), q.Get("error"))
	if err != nil {
		h.server.Auditor.LogAuthFailure(ip, errorKind(err))
		h.logger.Warn("Login failed",
			"ip", ip,
			"kind", errorKind(err))
		http.Redirect(w, r, h.server.Config.ErrorURL, http.StatusFound)
		h.recordRequest(r, http.StatusFound, start)
		return
	}

	session, sessErr := h.server.Session(r.Context(), sessionID)
	if sessErr == nil {
		h.server.Auditor.LogSessionCreated(session.User.ID, sessionID, ip)
	}

	h.setSessionCookie(w, sessionID)
	h.logger.Debug("Session cookie issued",
		"session_prefix", util.SafeTruncate(sessionID, sessionIDLogLength))
	http.Redirect(w, r, h.server.Config.AppURL, http.StatusFound)
	h.recordRequest(r, http.StatusFound, start)
}

// handleLogout invalidates the session and clears the cookie.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, start)
		return
	}

	if sessionID := h.sessionIDFromCookie(r); sessionID != "" {
		if err := h.server.Logout(r.Context(), sessionID); err != nil {
			h.logger.Error("Logout failed", "error", err)
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, h.server.Config.AppURL, http.StatusFound)
	h.recordRequest(r, http.StatusFound, start)
}

// sessionInfo is the JSON document served by the session endpoint.
type sessionInfo struct {
	Authenticated bool          `json:"authenticated"`
	User          *storage.User `json:"user,omitempty"`
}

// handleSession reports the caller's authentication state for UI
// polling.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, start)
		return
	}

	info := sessionInfo{}
	if sessionID := h.sessionIDFromCookie(r); sessionID != "" {
		if session, err := h.server.Session(r.Context(), sessionID); err == nil {
			info.Authenticated = true
			user := session.User
			info.User = &user
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	status := http.StatusOK
	if !info.Authenticated {
		status = http.StatusUnauthorized
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		h.logger.Error("Failed to encode session info", "error", err)
	}
	h.recordRequest(r, status, start)
}

// rateLimited enforces the per-IP limiter. Returns true when the
// request was rejected.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request, ip string, start time.Time) bool {
	if h.server.RateLimiter.Allow(ip) {
		return false
	}

	h.server.Auditor.LogRateLimitExceeded(ip)
	if m := h.server.metrics(); m != nil {
		m.RecordRateLimitExceeded(r.Context(), "ip")
	}
	h.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)

	http.Error(w, ErrRateLimited.Description, http.StatusTooManyRequests)
	h.recordRequest(r, http.StatusTooManyRequests, start)
	return true
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request, start time.Time) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	h.recordRequest(r, http.StatusMethodNotAllowed, start)
}

// recordRequest records HTTP metrics for the request.
func (h *Handler) recordRequest(r *http.Request, status int, start time.Time) {
	m := h.server.metrics()
	if m == nil {
		return
	}
	m.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, status, float64(time.Since(start).Milliseconds()))
}

// setSessionCookie issues the HTTP-only session cookie. The session ID
// is the only credential the browser ever holds; tokens stay server
// side.
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.server.Config.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   !h.server.Config.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.server.Config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.server.Config.InsecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionIDFromCookie extracts the session ID, or "" when absent.
func (h *Handler) sessionIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.server.Config.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clientIP determines the caller's IP, honoring proxy headers only when
// configured to trust them.
func (h *Handler) clientIP(r *http.Request) string {
	if h.server.Config.RateLimit.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// errorKind extracts the stable kind from an AuthError for audit logs.
func errorKind(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return "internal_error"
}
