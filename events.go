package goSession

import "sync"

// EventKind identifies a session lifecycle event.
//
// EventKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EventKind uint8

const (
	// EventAuthenticationSucceeded fires on the transition from the
	// unauthenticated to the authenticated state. It does not fire on
	// silent restores or on refreshes of an already authenticated session.
	EventAuthenticationSucceeded EventKind = iota
	// EventAuthenticationFailed fires when an Authenticate call is rejected
	// by the authenticator. The event carries the authenticator's error.
	EventAuthenticationFailed
	// EventInvalidationSucceeded fires on the transition from the
	// authenticated to the unauthenticated state, including externally
	// pushed invalidations.
	EventInvalidationSucceeded
	// EventInvalidationFailed fires when an Invalidate call is rejected by
	// the authenticator. The session stays authenticated.
	EventInvalidationFailed
	// EventAuthorizationFailed is re-exposed on behalf of an external HTTP
	// collaborator that observed an unauthorized response. The session never
	// raises it itself.
	EventAuthorizationFailed

	eventKindCount
)

// Event is delivered to lifecycle subscribers. Err is set for the *Failed
// kinds and nil otherwise.
type Event struct {
	Kind EventKind
	Err  error
}

// eventBus fans lifecycle events out to handle-based subscribers. Handlers
// run synchronously on the emitting goroutine, after the session has
// published its new state and released the transition lock.
type eventBus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers [eventKindCount]map[uint64]func(Event)
}

func (b *eventBus) subscribe(kind EventKind, fn func(Event)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[uint64]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.handlers[kind][id] = fn
	return &subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[kind], id)
	}}
}

func (b *eventBus) emit(events ...Event) {
	for _, event := range events {
		if event.Kind >= eventKindCount {
			continue
		}
		b.mu.Lock()
		handlers := make([]func(Event), 0, len(b.handlers[event.Kind]))
		for _, fn := range b.handlers[event.Kind] {
			handlers = append(handlers, fn)
		}
		b.mu.Unlock()

		for _, fn := range handlers {
			fn(event)
		}
	}
}
