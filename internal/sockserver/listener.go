package sockserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/sockd/internal/framing"
	"github.com/dantte-lp/sockd/internal/metrics"
)

func defaultFramerFactory(conn net.Conn) Framer {
	return framing.New(conn)
}

// Config describes one Unix-domain listener.
type Config struct {
	// Path is the filesystem path of the socket to bind.
	Path string

	// Hooks is the hook table dispatched to for every accepted client.
	// ReadBegin must be non-nil.
	Hooks SocketHooks

	// RemoveBeforeBind, when true, unlinks Path before binding so a
	// stale socket inode left behind by a crashed instance doesn't make
	// bind fail with EADDRINUSE. It is normally set by the owning Daemon
	// from whether a pid-file lock was acquired, not chosen directly by
	// callers constructing a Listener standalone.
	RemoveBeforeBind bool

	// Backlog is the listen(2) backlog; zero uses a default of 10,
	// matching the original's socket_setup.
	Backlog int

	// NewFramer builds the Framer for each accepted connection. A nil
	// value defaults to internal/framing's length-prefixed codec.
	NewFramer FramerFactory

	// Logger is the base logger; a child logger tagged with the
	// listener's path is derived from it. A nil Logger defaults to
	// slog.Default().
	Logger *slog.Logger

	// Metrics is an optional collector; nil disables instrumentation.
	Metrics *metrics.Collector
}

const defaultBacklog = 10

// Listener owns one bound Unix-domain socket and every ClientSession
// accepted on it. It is created by a Daemon (or directly, for standalone
// use) and torn down exactly once via Close, which destroys every live
// session before unlinking the socket path.
type Listener struct {
	path      string
	hooks     SocketHooks
	newFramer FramerFactory
	logger    *slog.Logger
	metrics   *metrics.Collector

	ln *net.UnixListener

	mu       sync.Mutex
	sessions map[uint64]*ClientSession
	nextID   uint64
	closed   bool

	closeOnce sync.Once
}

// NewListener validates cfg, binds the socket, and starts listening. The
// returned Listener does not yet accept connections; call Run to start
// the accept loop.
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: listener path is empty", ErrConfig)
	}
	if len(cfg.Path) > maxUnixPathLen {
		return nil, fmt.Errorf("%w: path %q is %d bytes, longer than the platform limit of %d", ErrConfig, cfg.Path, len(cfg.Path), maxUnixPathLen)
	}
	if cfg.Hooks.ReadBegin == nil {
		return nil, fmt.Errorf("%w: SocketHooks.ReadBegin is required", ErrConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("listener", cfg.Path))

	newFramer := cfg.NewFramer
	if newFramer == nil {
		newFramer = defaultFramerFactory
	}

	if cfg.RemoveBeforeBind {
		if err := os.Remove(cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: removing stale socket %q: %v", ErrBindFailed, cfg.Path, err)
		}
	}

	ln, err := bindListenUnix(cfg.Path, cfg.Backlog)
	if err != nil {
		return nil, err
	}

	return &Listener{
		path:      cfg.Path,
		hooks:     cfg.Hooks,
		newFramer: newFramer,
		logger:    logger,
		metrics:   cfg.Metrics,
		ln:        ln,
		sessions:  make(map[uint64]*ClientSession),
	}, nil
}

// bindListenUnix creates a non-blocking AF_UNIX stream socket, binds it to
// path, and puts it into the listening state with the given backlog
// (defaultBacklog if zero or negative), wrapping the result in a
// *net.UnixListener. It is built on raw unix.Socket/Bind/Listen calls
// rather than net.ListenUnix, so the bind and listen steps fail distinctly
// (ErrBindFailed vs ErrListenFailed) and the configured backlog actually
// reaches listen(2) instead of whatever default the runtime's net package
// picks.
func bindListenUnix(path string, backlog int) (*net.UnixListener, error) {
	if backlog <= 0 {
		backlog = defaultBacklog
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", ErrBindFailed, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: set nonblocking: %v", ErrBindFailed, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: bind %s: %v", ErrBindFailed, path, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: listen %s (backlog %d): %v", ErrListenFailed, path, backlog, err)
	}

	// os.NewFile takes ownership of fd (a finalizer closes it if leaked).
	// net.FileListener dups the fd internally, so the os.File must be
	// closed explicitly once it returns to avoid leaking the original.
	f := os.NewFile(uintptr(fd), path)
	ln, err := net.FileListener(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: wrap listener fd for %s: %v", ErrListenFailed, path, err)
	}

	unixLn, ok := ln.(*net.UnixListener)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("%w: unexpected listener type for %s", ErrListenFailed, path)
	}

	return unixLn, nil
}

// Path returns the listener's bound socket path.
func (l *Listener) Path() string { return l.path }

// Run accepts connections until the listener is closed (returns nil) or the
// listening file descriptor itself becomes unusable (returns a wrapped
// ErrListenerFailure). A single failed accept is logged and retried with
// bounded exponential backoff; it only escalates to a fatal error after
// enough consecutive failures that the fd is almost certainly broken.
func (l *Listener) Run() error {
	stopped := make(chan struct{})
	defer close(stopped)

	var delay time.Duration
	var consecutiveFailures int
	const maxConsecutiveFailures = 20
	const maxDelay = 1 * time.Second

	for {
		conn, err := l.ln.AcceptUnix()
		if err != nil {
			if l.isClosed() {
				return nil
			}

			consecutiveFailures++
			l.metricsIncAcceptError()
			if consecutiveFailures >= maxConsecutiveFailures {
				l.metricsIncListenerFailure()
				return fmt.Errorf("%w: %d consecutive accept failures on %s: %v", ErrListenerFailure, consecutiveFailures, l.path, err)
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxDelay {
				delay = maxDelay
			}
			l.logger.Warn("accept failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
				slog.Int("consecutive_failures", consecutiveFailures))

			select {
			case <-time.After(delay):
				continue
			case <-stopped:
				return nil
			}
		}

		delay = 0
		consecutiveFailures = 0
		l.startSession(conn)
	}
}

func (l *Listener) startSession(conn net.Conn) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.nextID++
	id := l.nextID
	l.mu.Unlock()

	sess := newClientSession(id, l, conn)

	l.mu.Lock()
	l.sessions[id] = sess
	l.mu.Unlock()

	go sess.serve()
}

func (l *Listener) removeSession(id uint64) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// ActiveSessions returns the current number of live sessions. Intended for
// tests and diagnostics.
func (l *Listener) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// Close stops accepting, destroys every live session, closes the listening
// socket, and unlinks its path. It is idempotent and safe to call
// concurrently with Run.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		sessions := make([]*ClientSession, 0, len(l.sessions))
		for _, s := range l.sessions {
			sessions = append(sessions, s)
		}
		l.mu.Unlock()

		for _, s := range sessions {
			s.Close()
		}

		_ = l.ln.Close()
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("failed to unlink socket path", slog.String("error", err.Error()))
		}
	})
	return nil
}

func (l *Listener) metricsIncAcceptError() {
	if l.metrics != nil {
		l.metrics.IncAcceptErrors(l.path)
	}
}

func (l *Listener) metricsIncConnect() {
	if l.metrics != nil {
		l.metrics.IncConnect(l.path)
	}
}

func (l *Listener) metricsIncDisconnect() {
	if l.metrics != nil {
		l.metrics.IncDisconnect(l.path)
	}
}

func (l *Listener) metricsIncReadBegin() {
	if l.metrics != nil {
		l.metrics.IncReadBegin(l.path)
	}
}

func (l *Listener) metricsIncListenerFailure() {
	if l.metrics != nil {
		l.metrics.IncListenerFailures(l.path)
	}
}
