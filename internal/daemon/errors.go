package daemon

import "errors"

var (
	// ErrAlreadyRunning is returned by Setup when the configured pid file
	// is already held by another instance.
	ErrAlreadyRunning = errors.New("daemon: already running (pid file held by another process)")

	// ErrInvalidState is returned when a method is called out of order,
	// e.g. AddListener after Run, or Run called twice.
	ErrInvalidState = errors.New("daemon: invalid lifecycle state for this call")

	// ErrPidGone is returned by Run when the watched supervising pid was
	// confirmed gone (pidwatch.ErrGone).
	ErrPidGone = errors.New("daemon: supervising process is gone")
)

// ListenerFailureError wraps a fatal failure of a single Listener's accept
// loop; it is the error Run returns when that listener caused shutdown.
type ListenerFailureError struct {
	Path string
	Err  error
}

func (e *ListenerFailureError) Error() string {
	return "daemon: listener " + e.Path + " failed: " + e.Err.Error()
}

func (e *ListenerFailureError) Unwrap() error { return e.Err }
