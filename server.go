package lichessauth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/instrumentation"
	"github.com/blunderboard/lichessauth/providers"
	"github.com/blunderboard/lichessauth/security"
	"github.com/blunderboard/lichessauth/storage"
)

// Server coordinates the login flow and session lifecycle using a
// Provider and storage backends.
type Server struct {
	provider     providers.Provider
	flowStore    storage.FlowStore
	sessionStore storage.SessionStore

	Auditor     *security.Auditor
	RateLimiter *security.RateLimiter
	Logger      *slog.Logger
	Config      *Config

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer

	// now is replaceable in tests.
	now func() time.Time

	// refreshLocks serializes refreshes per session so concurrent
	// callers with an expired token share one provider call.
	refreshMu    sync.Mutex
	refreshLocks map[string]*refreshLock
}

type refreshLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a new authentication server.
func New(
	provider providers.Provider,
	flowStore storage.FlowStore,
	sessionStore storage.SessionStore,
	config *Config,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()

	srv := &Server{
		provider:     provider,
		flowStore:    flowStore,
		sessionStore: sessionStore,
		Config:       config,
		Logger:       config.Logger,
		Auditor:      security.NewAuditor(config.Logger, config.EnableAuditLogging),
		now:          time.Now,
		refreshLocks: make(map[string]*refreshLock),
	}

	if config.RateLimit.Rate > 0 {
		srv.RateLimiter = security.NewRateLimiter(config.RateLimit.Rate, config.RateLimit.Burst, config.Logger)
	}

	return srv, nil
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil {
		s.tracer = inst.Tracer("flow")
	}
}

// Provider returns the configured provider.
func (s *Server) Provider() providers.Provider {
	return s.provider
}

// Stop releases background resources held by the server.
func (s *Server) Stop() {
	if s.RateLimiter != nil {
		s.RateLimiter.Stop()
	}
}

// metrics returns the metric recorder, or nil when instrumentation is
// not configured.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.inst == nil {
		return nil
	}
	return s.inst.Metrics()
}

// acquireRefreshLock locks the per-session refresh mutex, creating it
// on first use.
func (s *Server) acquireRefreshLock(sessionID string) *refreshLock {
	s.refreshMu.Lock()
	l := s.refreshLocks[sessionID]
	if l == nil {
		l = &refreshLock{}
		s.refreshLocks[sessionID] = l
	}
	l.refs++
	s.refreshMu.Unlock()

	l.mu.Lock()
	return l
}

// releaseRefreshLock unlocks the per-session mutex and drops the map
// entry once no caller holds a reference.
func (s *Server) releaseRefreshLock(sessionID string, l *refreshLock) {
	l.mu.Unlock()

	s.refreshMu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.refreshLocks, sessionID)
	}
	s.refreshMu.Unlock()
}

// generateRandomToken generates a cryptographically secure random
// URL-safe token, used for states and session IDs. Delegates to
// oauth2.GenerateVerifier, which encodes 32 random bytes.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
