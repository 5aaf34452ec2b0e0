// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and
// single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/blunderboard/lichessauth/instrumentation"
	"github.com/blunderboard/lichessauth/security"
	"github.com/blunderboard/lichessauth/storage"
)

// Store is an in-memory implementation of storage.FlowStore and
// storage.SessionStore.
type Store struct {
	mu sync.RWMutex

	pending  map[string]*storage.PendingAuthorization
	sessions map[string]*storage.Session

	// Token values are encrypted at rest when an encryptor is set.
	encryptor *security.Encryptor

	// now is replaceable in tests to exercise expiry paths without
	// sleeping.
	now func() time.Time

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters feed the observable gauges without taking the
	// store lock during metric collection.
	sessionsCountAtomic atomic.Int64
	pendingCountAtomic  atomic.Int64

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var (
	_ storage.FlowStore    = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// of one minute.
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. A non-positive interval falls back to one minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		pending:         make(map[string]*storage.PendingAuthorization),
		sessions:        make(map[string]*storage.Session),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// SetEncryptor enables token encryption at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Token encryption at rest enabled for storage")
	}
}

// SetClock replaces the store's time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.now = now
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.pendingCountAtomic.Store(int64(len(s.pending)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.sessionsCountAtomic.Load() },
			func() int64 { return s.pendingCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// SavePendingAuthorization stores a pending attempt under its state.
func (s *Store) SavePendingAuthorization(ctx context.Context, pending *storage.PendingAuthorization) error {
	ctx, span := s.startStorageSpan(ctx, "save_pending")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_pending", err, startTime)
	}()

	if pending == nil || pending.State == "" {
		err = fmt.Errorf("invalid pending authorization")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.pending[pending.State]
	s.pending[pending.State] = pending
	if !existed {
		s.pendingCountAtomic.Add(1)
	}

	s.logger.Debug("Saved pending authorization", "expires_at", pending.ExpiresAt)
	return nil
}

// ConsumePendingAuthorization atomically removes and returns the
// pending attempt for the given state. Only one concurrent caller can
// receive a given attempt; the rest observe ErrPendingNotFound.
func (s *Store) ConsumePendingAuthorization(ctx context.Context, state string) (*storage.PendingAuthorization, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_pending")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "consume_pending", err, startTime)
	}()

	s.mu.Lock() // Write lock: the check and the delete must be one step
	defer s.mu.Unlock()

	pending, ok := s.pending[state]
	if !ok {
		err = fmt.Errorf("%w: unknown or already consumed state", storage.ErrPendingNotFound)
		return nil, err
	}

	delete(s.pending, state)
	s.pendingCountAtomic.Add(-1)

	if pending.Expired(s.now()) {
		err = fmt.Errorf("%w: state expired", storage.ErrPendingNotFound)
		return nil, err
	}

	s.logger.Debug("Consumed pending authorization")
	return pending, nil
}

// DeletePendingAuthorization removes a pending attempt. Deleting an
// absent record is not an error.
func (s *Store) DeletePendingAuthorization(ctx context.Context, state string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_pending")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_pending", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.pending[state]; existed {
		delete(s.pending, state)
		s.pendingCountAtomic.Add(-1)
	}
	return nil
}

// SaveSession persists a session under the given ID, encrypting token
// values when an encryptor is configured.
func (s *Store) SaveSession(ctx context.Context, sessionID string, session *storage.Session) error {
	ctx, span := s.startStorageSpan(ctx, "save_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "save_session", err, startTime)
	}()

	if sessionID == "" {
		err = fmt.Errorf("sessionID cannot be empty")
		return err
	}
	if session == nil {
		err = fmt.Errorf("session cannot be nil")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := session.Clone()
	if stored.Token, err = s.sealToken(stored.Token); err != nil {
		return err
	}

	_, existed := s.sessions[sessionID]
	s.sessions[sessionID] = stored
	if !existed {
		s.sessionsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved session", "user_id", session.User.ID)
	return nil
}

// GetSession returns a copy of the stored session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	ctx, span := s.startStorageSpan(ctx, "get_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "get_session", err, startTime)
	}()

	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}

	result := session.Clone()
	if result.Token, err = s.openToken(result.Token); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteSession removes a session. Idempotent.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_session")
	defer span.End()

	startTime := time.Now()
	defer func() {
		s.recordStorageOperation(ctx, span, "delete_session", nil, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.sessions[sessionID]; existed {
		delete(s.sessions, sessionID)
		s.sessionsCountAtomic.Add(-1)
		s.logger.Debug("Deleted session")
	}
	return nil
}

// UpdateSession atomically applies mutate to the stored session. The
// mutator sees decrypted token values; the result is re-encrypted
// before it replaces the stored copy.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, mutate func(*storage.Session) error) error {
	ctx, span := s.startStorageSpan(ctx, "update_session")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() {
		s.recordStorageOperation(ctx, span, "update_session", err, startTime)
	}()

	if mutate == nil {
		err = fmt.Errorf("mutate cannot be nil")
		return err
	}

	s.mu.Lock() // Write lock for the whole read-mutate-write cycle
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionID]
	if !ok {
		err = storage.ErrSessionNotFound
		return err
	}

	working := stored.Clone()
	if working.Token, err = s.openToken(working.Token); err != nil {
		return err
	}

	if err = mutate(working); err != nil {
		return err
	}

	if working.Token, err = s.sealToken(working.Token); err != nil {
		return err
	}

	s.sessions[sessionID] = working
	return nil
}

// sealToken encrypts token credential fields for storage. Must be
// called with a token the store exclusively owns.
func (s *Store) sealToken(token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || !s.encryptor.IsEnabled() {
		return token, nil
	}

	sealed := *token
	var err error
	if sealed.AccessToken != "" {
		if sealed.AccessToken, err = s.encryptor.Encrypt(sealed.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
	}
	if sealed.RefreshToken != "" {
		if sealed.RefreshToken, err = s.encryptor.Encrypt(sealed.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return &sealed, nil
}

// openToken decrypts token credential fields read from storage.
func (s *Store) openToken(token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || !s.encryptor.IsEnabled() {
		return token, nil
	}

	opened := *token
	var err error
	if opened.AccessToken != "" {
		if opened.AccessToken, err = s.encryptor.Decrypt(opened.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
	}
	if opened.RefreshToken != "" {
		if opened.RefreshToken, err = s.encryptor.Decrypt(opened.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	return &opened, nil
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup sweeps expired pending authorizations. Sessions have no
// server-side TTL of their own; they live until logout or a failed
// refresh removes them.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0

	for state, pending := range s.pending {
		if pending.Expired(now) {
			delete(s.pending, state)
			s.pendingCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired pending authorizations", "count", cleaned)
	}
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
