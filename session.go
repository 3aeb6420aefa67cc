package goSession

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// sessionState is the atomically published snapshot of the state machine.
// A new value is built in full, then swapped; observers never see a state
// where authenticated, factory, and content disagree.
type sessionState struct {
	authenticated bool
	factory       string
	content       Content
}

var unauthenticatedState = &sessionState{content: Content{}}

// Session defines a public type used by goSession APIs.
//
// Session is the state machine tracking authentication status and resolved
// identity data for the running application instance. It is created once via
// [Builder.Build], lives for the process lifetime, and is reset to the
// unauthenticated state rather than torn down.
type Session struct {
	config   Config
	registry *Registry
	store    Store

	// mu serializes state transitions. It is never held while awaiting a
	// collaborator or while running lifecycle event handlers.
	mu           sync.Mutex
	boundAuth    Authenticator
	boundFactory string
	authUpdated  Subscription
	authRevoked  Subscription

	state atomic.Pointer[sessionState]

	storeSub Subscription
	events   eventBus
	audit    *auditDispatcher
	metrics  *Metrics

	attemptedMu         sync.Mutex
	attemptedTransition any
}

// IsAuthenticated reports whether the session is in the authenticated state.
func (s *Session) IsAuthenticated() bool {
	if s == nil {
		return false
	}
	return s.snapshot().authenticated
}

// AuthenticatorFactory returns the factory name of the bound authenticator,
// or the empty string when unauthenticated.
func (s *Session) AuthenticatorFactory() string {
	if s == nil {
		return ""
	}
	return s.snapshot().factory
}

// Content returns a copy of the resolved session data. The copy never
// contains the reserved factory key.
func (s *Session) Content() Content {
	if s == nil {
		return Content{}
	}
	return s.snapshot().content.Clone()
}

// Get returns a single resolved session value by key.
func (s *Session) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.snapshot().content[key]
	return v, ok
}

// AttemptedTransition returns the caller-owned value stored by
// [Session.SetAttemptedTransition], typically the navigation intercepted
// before redirecting to authentication.
func (s *Session) AttemptedTransition() any {
	if s == nil {
		return nil
	}
	s.attemptedMu.Lock()
	defer s.attemptedMu.Unlock()
	return s.attemptedTransition
}

// SetAttemptedTransition stores an opaque caller-owned value. The session
// only carries it; nil clears it.
func (s *Session) SetAttemptedTransition(t any) {
	if s == nil {
		return
	}
	s.attemptedMu.Lock()
	defer s.attemptedMu.Unlock()
	s.attemptedTransition = t
}

// Subscribe registers a lifecycle event handler and returns its cancellation
// handle. Handlers run synchronously on the goroutine that completed the
// transition, after the new state has been published.
func (s *Session) Subscribe(kind EventKind, fn func(Event)) Subscription {
	if s == nil || fn == nil || kind >= eventKindCount {
		return &subscription{cancel: func() {}}
	}
	return s.events.subscribe(kind, fn)
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate resolves the named authenticator, delegates to its
// Authenticate, and on success transitions to the authenticated state,
// persisting the resolved content merged with the factory name. On rejection
// the session is reset to the unauthenticated state, the snapshot is
// cleared, [EventAuthenticationFailed] fires with the authenticator's error,
// and that error is returned verbatim.
//
// [EventAuthenticationSucceeded] fires only on the edge from the
// unauthenticated state; re-authenticating an already authenticated session
// succeeds silently. Concurrent calls are not coalesced: each invokes its
// authenticator independently and the last to settle wins.
func (s *Session) Authenticate(ctx context.Context, authenticatorFactory string, options Content) error {
	if s == nil {
		return ErrSessionNotReady
	}
	if strings.TrimSpace(authenticatorFactory) == "" {
		return ErrEmptyAuthenticatorFactory
	}

	authenticator, err := s.registry.Lookup(authenticatorFactory)
	if err != nil {
		return err
	}

	start := time.Now()
	content, err := authenticator.Authenticate(ctx, options.Clone())
	s.metrics.Observe(MetricAuthenticateLatency, time.Since(start))

	if err != nil {
		s.mu.Lock()
		events := s.clearLocked(ctx, false)
		s.mu.Unlock()
		events = append(events, Event{Kind: EventAuthenticationFailed, Err: err})
		s.events.emit(events...)

		s.metrics.Inc(MetricAuthenticateFailure)
		s.emitAudit(ctx, auditEventAuthenticateFailure, authenticatorFactory, false, err, nil)
		return err
	}

	s.mu.Lock()
	events := s.setupLocked(ctx, authenticatorFactory, authenticator, content, true)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricAuthenticateSuccess)
	s.emitAudit(ctx, auditEventAuthenticateSuccess, authenticatorFactory, true, nil, nil)
	return nil
}

// Invalidate describes the invalidate operation and its observable behavior.
//
// Invalidate delegates to the bound authenticator's Invalidate. On success
// the session transitions to the unauthenticated state, the persisted
// snapshot is cleared, and [EventInvalidationSucceeded] fires. On rejection
// the session stays authenticated (invalidation is cancellable by the
// authenticator), [EventInvalidationFailed] fires, and the error is
// returned. Calling Invalidate on an unauthenticated session is a caller
// bug and fails fast with [ErrNotAuthenticated].
func (s *Session) Invalidate(ctx context.Context) error {
	if s == nil {
		return ErrSessionNotReady
	}

	s.mu.Lock()
	authenticator := s.boundAuth
	factory := s.boundFactory
	s.mu.Unlock()

	st := s.snapshot()
	if !st.authenticated || authenticator == nil {
		return ErrNotAuthenticated
	}

	if err := authenticator.Invalidate(ctx, st.content.Clone()); err != nil {
		s.events.emit(Event{Kind: EventInvalidationFailed, Err: err})
		s.metrics.Inc(MetricInvalidateFailure)
		s.emitAudit(ctx, auditEventInvalidateFailure, factory, false, err, nil)
		return err
	}

	s.mu.Lock()
	events := s.clearLocked(ctx, true)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricInvalidateSuccess)
	s.emitAudit(ctx, auditEventInvalidateSuccess, factory, true, nil, nil)
	return nil
}

// Restore describes the restore operation and its observable behavior.
//
// Restore attempts silent re-authentication from the persisted snapshot. It
// is invoked once at startup by the surrounding application. When the
// snapshot carries a factory name, the corresponding authenticator's Restore
// decides whether the remaining data is still valid; on success the session
// enters the authenticated state WITHOUT firing
// [EventAuthenticationSucceeded]. A snapshot without a factory name is an
// ordinary failure: the store is cleared and [ErrNoRestorableSession] is
// returned.
func (s *Session) Restore(ctx context.Context) error {
	if s == nil {
		return ErrSessionNotReady
	}

	data, err := s.store.Restore(ctx)
	if err != nil {
		s.metrics.Inc(MetricRestoreFailure)
		s.emitAudit(ctx, auditEventRestoreFailure, "", false, err, nil)
		return err
	}

	factory, _ := data[FactoryKey].(string)
	if strings.TrimSpace(factory) == "" {
		s.clearStore(ctx)
		s.metrics.Inc(MetricRestoreFailure)
		s.emitAudit(ctx, auditEventRestoreFailure, "", false, ErrNoRestorableSession, nil)
		return ErrNoRestorableSession
	}

	authenticator, err := s.registry.Lookup(factory)
	if err != nil {
		s.clearStore(ctx)
		s.metrics.Inc(MetricRestoreFailure)
		s.emitAudit(ctx, auditEventRestoreFailure, factory, false, err, nil)
		return err
	}

	remainder := data.Clone()
	delete(remainder, FactoryKey)

	content, err := authenticator.Restore(ctx, remainder)
	if err != nil {
		if s.config.Restore.ClearOnFailure {
			s.clearStore(ctx)
		}
		s.metrics.Inc(MetricRestoreFailure)
		s.emitAudit(ctx, auditEventRestoreFailure, factory, false, err, nil)
		return err
	}

	s.mu.Lock()
	events := s.setupLocked(ctx, factory, authenticator, content, false)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricRestoreSuccess)
	s.emitAudit(ctx, auditEventRestoreSuccess, factory, true, nil, nil)
	return nil
}

// ReportAuthorizationFailed re-exposes an unauthorized signal observed by an
// external HTTP-layer collaborator as [EventAuthorizationFailed]. The
// session state is not changed; reacting (usually by calling Invalidate) is
// up to the application.
func (s *Session) ReportAuthorizationFailed() {
	if s == nil {
		return
	}
	s.events.emit(Event{Kind: EventAuthorizationFailed})
	s.metrics.Inc(MetricAuthorizationFailed)
	s.emitAudit(context.Background(), auditEventAuthorizationFailed, s.AuthenticatorFactory(), false, nil, nil)
}

// MetricsSnapshot returns a point-in-time copy of all session metrics.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// AuditDropped reports audit events discarded under backpressure.
func (s *Session) AuditDropped() uint64 {
	if s == nil || s.audit == nil {
		return 0
	}
	return s.audit.Dropped()
}

// Close releases the store subscription and drains the audit dispatcher.
// The session itself stays usable as an unauthenticated state holder; Close
// exists for orderly shutdown and tests.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.unbindLocked()
	s.mu.Unlock()
	if s.storeSub != nil {
		s.storeSub.Cancel()
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

func (s *Session) snapshot() *sessionState {
	if st := s.state.Load(); st != nil {
		return st
	}
	return unauthenticatedState
}

// setupLocked enters or refreshes the authenticated state. The caller holds
// s.mu. The returned events must be emitted after the lock is released.
//
// Invariant: at most one live updated/invalidated subscription pair exists
// per bound authenticator; rebinding cancels the previous pair first.
func (s *Session) setupLocked(ctx context.Context, factory string, authenticator Authenticator, content Content, shouldTrigger bool) []Event {
	prev := s.snapshot()

	next := &sessionState{
		authenticated: true,
		factory:       factory,
		content:       content.Clone(),
	}
	delete(next.content, FactoryKey)

	s.rebindLocked(factory, authenticator)
	s.state.Store(next)

	persisted := next.content.Clone()
	persisted[FactoryKey] = factory
	if err := s.store.Persist(ctx, persisted); err != nil {
		// Persist is best-effort; in-memory state stays authoritative.
		log.Print("goSession: session persist failed")
	}

	if shouldTrigger && !prev.authenticated {
		return []Event{{Kind: EventAuthenticationSucceeded}}
	}
	return nil
}

// clearLocked enters the unauthenticated state. The caller holds s.mu. The
// returned events must be emitted after the lock is released.
func (s *Session) clearLocked(ctx context.Context, shouldTrigger bool) []Event {
	prev := s.snapshot()

	s.unbindLocked()
	s.state.Store(&sessionState{content: Content{}})
	s.clearStore(ctx)

	if shouldTrigger && prev.authenticated {
		return []Event{{Kind: EventInvalidationSucceeded}}
	}
	return nil
}

func (s *Session) clearStore(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		log.Print("goSession: session store clear failed")
	}
}

func (s *Session) rebindLocked(factory string, authenticator Authenticator) {
	s.unbindLocked()
	s.boundAuth = authenticator
	s.boundFactory = factory
	s.authUpdated = authenticator.SubscribeUpdated(func(content Content) {
		s.handleAuthenticatorUpdated(authenticator, content)
	})
	s.authRevoked = authenticator.SubscribeInvalidated(func() {
		s.handleAuthenticatorInvalidated(authenticator)
	})
}

func (s *Session) unbindLocked() {
	if s.authUpdated != nil {
		s.authUpdated.Cancel()
		s.authUpdated = nil
	}
	if s.authRevoked != nil {
		s.authRevoked.Cancel()
		s.authRevoked = nil
	}
	s.boundAuth = nil
	s.boundFactory = ""
}

// handleAuthenticatorUpdated reconciles a refresh pushed by the bound
// authenticator (e.g. token rotation). The factory stays the same and no
// success event fires: a refresh is not a new login.
func (s *Session) handleAuthenticatorUpdated(from Authenticator, content Content) {
	ctx := context.Background()

	s.mu.Lock()
	if s.boundAuth != from {
		// Stale broadcast from an authenticator unbound mid-flight.
		s.mu.Unlock()
		return
	}
	factory := s.boundFactory
	events := s.setupLocked(ctx, factory, from, content, false)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricAuthenticatorRefresh)
	s.emitAudit(ctx, auditEventAuthenticatorRefresh, factory, true, nil, nil)
}

// handleAuthenticatorInvalidated reconciles a forced logout pushed by the
// bound authenticator. From the session's viewpoint the invalidation
// completed, so [EventInvalidationSucceeded] fires.
func (s *Session) handleAuthenticatorInvalidated(from Authenticator) {
	ctx := context.Background()

	s.mu.Lock()
	if s.boundAuth != from {
		s.mu.Unlock()
		return
	}
	factory := s.boundFactory
	events := s.clearLocked(ctx, true)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricRemoteInvalidation)
	s.emitAudit(ctx, auditEventRemoteInvalidation, factory, true, nil, nil)
}

// handleStoreUpdated reconciles a snapshot change pushed by the store
// (another process or node wrote it). A snapshot with a factory name is
// re-validated through that authenticator's Restore; one without means the
// session was logged out elsewhere. Both clears and setups here trigger
// events: an externally pushed change is always newsworthy.
//
// This handler is registered exactly once, at Build time, and stays
// subscribed for the lifetime of the process.
func (s *Session) handleStoreUpdated(data Content) {
	ctx := context.Background()

	factory, _ := data[FactoryKey].(string)
	if strings.TrimSpace(factory) == "" {
		s.mu.Lock()
		events := s.clearLocked(ctx, true)
		s.mu.Unlock()
		s.events.emit(events...)

		s.metrics.Inc(MetricStoreUpdateApplied)
		s.emitAudit(ctx, auditEventStoreUpdateApplied, "", true, nil, func() map[string]string {
			return map[string]string{"outcome": "cleared"}
		})
		return
	}

	authenticator, err := s.registry.Lookup(factory)
	if err != nil {
		s.mu.Lock()
		events := s.clearLocked(ctx, true)
		s.mu.Unlock()
		s.events.emit(events...)

		s.metrics.Inc(MetricStoreUpdateRejected)
		s.emitAudit(ctx, auditEventStoreUpdateRejected, factory, false, err, nil)
		return
	}

	remainder := data.Clone()
	delete(remainder, FactoryKey)

	content, err := authenticator.Restore(ctx, remainder)
	if err != nil {
		s.mu.Lock()
		events := s.clearLocked(ctx, true)
		s.mu.Unlock()
		s.events.emit(events...)

		s.metrics.Inc(MetricStoreUpdateRejected)
		s.emitAudit(ctx, auditEventStoreUpdateRejected, factory, false, err, nil)
		return
	}

	s.mu.Lock()
	events := s.setupLocked(ctx, factory, authenticator, content, true)
	s.mu.Unlock()
	s.events.emit(events...)

	s.metrics.Inc(MetricStoreUpdateApplied)
	s.emitAudit(ctx, auditEventStoreUpdateApplied, factory, true, nil, nil)
}
