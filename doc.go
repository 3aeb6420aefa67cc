// Package goSession tracks client-side authentication state: whether the
// current session is authenticated, which authenticator produced it, and the
// resolved identity data it carries.
//
// The package mediates between two pluggable collaborators. An
// [Authenticator] knows how to perform login, token restore, and logout
// against some backend; a [Store] persists session data across process
// restarts and propagates changes made by other processes. The [Session]
// state machine owns the transition rules between the authenticated and
// unauthenticated states and keeps the in-memory state and the persisted
// snapshot consistent at all times.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Session], [Builder],
// [Config], [Registry], the collaborator interfaces, lifecycle events, and
// value types (MetricsSnapshot, AuditEvent). Concrete collaborators live in
// sub-packages (store/memstore, store/redisstore, authenticators/tokenauth)
// and depend on the root package, never the other way around.
//
// # What this package must NOT do
//
//   - Perform network I/O itself; all I/O happens inside collaborators.
//   - Define token wire formats or transport behavior.
//   - Retry failed collaborator operations; retry policy belongs to the
//     Authenticator.
//
// # Concurrency contract
//
// A single mutex serializes state transitions. Reads ([Session.IsAuthenticated],
// [Session.Content], ...) never block on that mutex: they observe an
// atomically published state value and are safe from any goroutine. Two
// overlapping Authenticate calls are intentionally not serialized against
// each other; whichever settles last determines the final state.
package goSession
