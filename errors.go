package goSession

import "errors"

var (
	// ErrEmptyAuthenticatorFactory is an exported constant or variable used by the session state machine.
	ErrEmptyAuthenticatorFactory = errors.New("empty authenticator factory")
	// ErrUnknownAuthenticator is an exported constant or variable used by the session state machine.
	ErrUnknownAuthenticator = errors.New("unknown authenticator")
	// ErrNotAuthenticated is an exported constant or variable used by the session state machine.
	ErrNotAuthenticated = errors.New("session not authenticated")
	// ErrNoRestorableSession is returned when the store snapshot carries no authenticator factory.
	ErrNoRestorableSession = errors.New("no restorable session")
	// ErrRegistryFrozen is returned when registering an authenticator after Freeze.
	ErrRegistryFrozen = errors.New("registry frozen")
	// ErrDuplicateAuthenticator is returned when a factory name is registered twice.
	ErrDuplicateAuthenticator = errors.New("duplicate authenticator factory")
	// ErrSessionNotReady is an exported constant or variable used by the session state machine.
	ErrSessionNotReady = errors.New("session not initialized")
	// ErrBuilderUsed is an exported constant or variable used by the session state machine.
	ErrBuilderUsed = errors.New("builder already used")
)
