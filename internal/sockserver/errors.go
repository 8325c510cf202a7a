// Package sockserver implements the event-driven core of a Unix-domain-socket
// server: a Listener that accepts local clients and a ClientSession that
// drives each connection's serial read/hook loop.
//
// The package is payload-agnostic: framing and message semantics are
// delegated to a Framer collaborator and a user-supplied SocketHooks table.
package sockserver

import "errors"

// Sentinel errors matching the error kinds of the core's error taxonomy.
// SessionIo and HookRejected are scoped to a single session and never
// escape it; ListenerFailure is the one that surfaces to the daemon.
var (
	// ErrConfig indicates a bad hook table or an invalid listener path.
	ErrConfig = errors.New("sockserver: invalid configuration")

	// ErrBindFailed indicates the listening socket could not be bound.
	ErrBindFailed = errors.New("sockserver: bind failed")

	// ErrListenFailed indicates the listening socket could not be put into
	// the listening state.
	ErrListenFailed = errors.New("sockserver: listen failed")

	// ErrListenerFailure indicates the accept loop could not continue
	// because the listening file descriptor itself became unusable. This
	// is fatal for the listener and surfaces to the owning Daemon.
	ErrListenerFailure = errors.New("sockserver: listener failed")

	// errSessionCancelled is logged internally when a session's in-flight
	// readBegin is abandoned because the session was torn down. It is
	// never surfaced to user hooks or to callers of the package.
	errSessionCancelled = errors.New("sockserver: session cancelled")
)

// maxUnixPathLen is the longest path (excluding the terminating NUL) that
// fits in a struct sockaddr_un's sun_path on this platform.
var maxUnixPathLen = sizeofSunPath() - 1
