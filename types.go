package goSession

import (
	"context"
	"sync"
)

// FactoryKey is the reserved key under which the persisted snapshot carries
// the authenticator factory name. It is stripped again before session data
// is handed back to an Authenticator.
const FactoryKey = "authenticator"

// Content holds arbitrary data resolved by an Authenticator (tokens, user
// info, etc.). Values are opaque to the session layer.
type Content map[string]any

// Clone returns a shallow copy of the content. A nil receiver yields an
// empty, non-nil map so callers can always range and index safely.
func (c Content) Clone() Content {
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Subscription is a handle returned by event subscriptions. Cancel removes
// the subscription; cancelling twice is a no-op.
type Subscription interface {
	Cancel()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Authenticator is the collaborator that performs the actual login, restore,
// and logout protocol against a backend.
//
// Authenticate, Restore, and Invalidate are the only suspension points the
// session layer awaits; none of them is cancellable beyond their context.
// Implementations embed [AuthenticatorEvents] to gain the subscription
// bookkeeping and the EmitUpdated/EmitInvalidated broadcast helpers.
type Authenticator interface {
	Authenticate(ctx context.Context, options Content) (Content, error)
	Restore(ctx context.Context, data Content) (Content, error)
	Invalidate(ctx context.Context, data Content) error

	SubscribeUpdated(fn func(Content)) Subscription
	SubscribeInvalidated(fn func()) Subscription
}

// Store is the collaborator that persists session data across restarts and
// propagates changes made by other processes.
//
// Persist and Clear are best-effort: the session treats their errors as
// non-fatal and keeps its in-memory state authoritative. Implementations
// embed [StoreEvents] for the update subscription plumbing.
type Store interface {
	Persist(ctx context.Context, data Content) error
	Restore(ctx context.Context) (Content, error)
	Clear(ctx context.Context) error

	SubscribeUpdated(fn func(Content)) Subscription
}

// AuthenticatorEvents implements the event half of [Authenticator]. Embed it
// in a concrete authenticator and call EmitUpdated/EmitInvalidated to push
// refreshed session data or a remote logout to the bound session.
//
// The zero value is ready to use.
type AuthenticatorEvents struct {
	mu          sync.Mutex
	nextID      uint64
	updated     map[uint64]func(Content)
	invalidated map[uint64]func()
}

// SubscribeUpdated registers fn for sessionDataUpdated broadcasts.
func (e *AuthenticatorEvents) SubscribeUpdated(fn func(Content)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updated == nil {
		e.updated = make(map[uint64]func(Content))
	}
	id := e.nextID
	e.nextID++
	e.updated[id] = fn
	return &subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.updated, id)
	}}
}

// SubscribeInvalidated registers fn for sessionDataInvalidated broadcasts.
func (e *AuthenticatorEvents) SubscribeInvalidated(fn func()) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated == nil {
		e.invalidated = make(map[uint64]func())
	}
	id := e.nextID
	e.nextID++
	e.invalidated[id] = fn
	return &subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.invalidated, id)
	}}
}

// EmitUpdated broadcasts refreshed session data to all updated subscribers.
// Handlers run on the calling goroutine, outside the emitter lock.
func (e *AuthenticatorEvents) EmitUpdated(content Content) {
	e.mu.Lock()
	handlers := make([]func(Content), 0, len(e.updated))
	for _, fn := range e.updated {
		handlers = append(handlers, fn)
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(content.Clone())
	}
}

// EmitInvalidated broadcasts a remote invalidation to all subscribers.
func (e *AuthenticatorEvents) EmitInvalidated() {
	e.mu.Lock()
	handlers := make([]func(), 0, len(e.invalidated))
	for _, fn := range e.invalidated {
		handlers = append(handlers, fn)
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// StoreEvents implements the event half of [Store]. Embed it in a concrete
// store and call EmitUpdated when the persisted snapshot changed outside the
// owning session (another process, another node).
//
// The zero value is ready to use.
type StoreEvents struct {
	mu      sync.Mutex
	nextID  uint64
	updated map[uint64]func(Content)
}

// SubscribeUpdated registers fn for external snapshot updates.
func (e *StoreEvents) SubscribeUpdated(fn func(Content)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.updated == nil {
		e.updated = make(map[uint64]func(Content))
	}
	id := e.nextID
	e.nextID++
	e.updated[id] = fn
	return &subscription{cancel: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.updated, id)
	}}
}

// EmitUpdated broadcasts an externally changed snapshot to all subscribers.
// Handlers run on the calling goroutine, outside the emitter lock.
func (e *StoreEvents) EmitUpdated(content Content) {
	e.mu.Lock()
	handlers := make([]func(Content), 0, len(e.updated))
	for _, fn := range e.updated {
		handlers = append(handlers, fn)
	}
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(content.Clone())
	}
}
