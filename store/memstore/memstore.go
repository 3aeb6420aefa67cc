// Package memstore provides an ephemeral in-memory session store.
//
// It keeps the snapshot for the lifetime of the process only and is the
// default choice for tests, load harnesses, and applications that do not
// need persistence across restarts.
package memstore

import (
	"context"
	"sync"

	goSession "github.com/kvistad/goSession"
)

// Store is an in-memory implementation of [goSession.Store].
type Store struct {
	goSession.StoreEvents

	mu   sync.RWMutex
	data goSession.Content
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Persist replaces the snapshot with a copy of data.
func (s *Store) Persist(_ context.Context, data goSession.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data.Clone()
	return nil
}

// Restore returns a copy of the snapshot, empty when nothing was persisted.
func (s *Store) Restore(context.Context) (goSession.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone(), nil
}

// Clear wipes the snapshot.
func (s *Store) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Inject replaces the snapshot as if another writer changed it and
// broadcasts the update to subscribers. It exists for tests and demos that
// need to simulate cross-process changes.
func (s *Store) Inject(data goSession.Content) {
	s.mu.Lock()
	s.data = data.Clone()
	s.mu.Unlock()

	s.EmitUpdated(data)
}
