package goSession

import (
	"fmt"
	"strings"
	"sync"
)

// Registry defines a public type used by goSession APIs.
//
// Registry maps factory names to constructed [Authenticator] instances. It
// replaces runtime container lookup: every authenticator a session may bind
// is registered explicitly, then the registry is frozen before use.
type Registry struct {
	mu             sync.RWMutex
	frozen         bool
	authenticators map[string]Authenticator
}

// NewRegistry describes the newregistry operation and its observable behavior.
//
// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		authenticators: make(map[string]Authenticator),
	}
}

// Register binds an authenticator to a factory name. Registration fails on
// an empty name, a duplicate name, or a frozen registry.
func (r *Registry) Register(factory string, authenticator Authenticator) error {
	factory = strings.TrimSpace(factory)
	if factory == "" {
		return ErrEmptyAuthenticatorFactory
	}
	if authenticator == nil {
		return fmt.Errorf("register %q: nil authenticator", factory)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.authenticators[factory]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAuthenticator, factory)
	}
	r.authenticators[factory] = authenticator
	return nil
}

// Freeze makes the registry immutable. Lookup remains available.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup resolves a factory name to its authenticator.
func (r *Registry) Lookup(factory string) (Authenticator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	authenticator, ok := r.authenticators[factory]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuthenticator, factory)
	}
	return authenticator, nil
}
