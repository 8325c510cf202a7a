// Package daemon composes the socket core, signal routing, and optional
// pid-file/pid-watch lifecycle into a single process-wide run loop. It is
// the Go-native replacement for a hierarchical-allocator-owned daemon
// object: ownership is explicit (Daemon owns its Listeners, a Listener
// owns its ClientSessions) and destruction flows root to leaves instead of
// through destructor callbacks.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/sockd/internal/metrics"
	"github.com/dantte-lp/sockd/internal/pidfile"
	"github.com/dantte-lp/sockd/internal/pidwatch"
	"github.com/dantte-lp/sockd/internal/signalrouter"
	"github.com/dantte-lp/sockd/internal/sockserver"
)

// State is the daemon's lifecycle state. It only ever moves forward.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateShuttingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Hooks is the daemon-level hook table. All three are optional.
type Hooks struct {
	// Startup runs once, shortly after Run begins, after every listener
	// has started its accept loop.
	Startup func()

	// Reconfigure runs once per coalesced SIGHUP/SIGUSR1.
	Reconfigure func()

	// Shutdown runs at most once per Run, and only when the startup
	// milestone was reached, so it pairs one-to-one with Startup. It runs
	// after every listener (and its sessions) has been torn down, before
	// the pid file (if any) is released.
	Shutdown func()
}

// Option configures a Daemon at Setup time.
type Option func(*Daemon)

// WithLogger sets the daemon's base logger. Child loggers for the signal
// router, pid watcher, and each listener are derived from it.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Daemon) { d.logger = logger }
}

// WithPidFile configures a pid-file path. Setup fails with
// ErrAlreadyRunning if it is already held by another process; successful
// acquisition also makes every subsequently added Listener bind with
// RemoveBeforeBind set, since a stale socket left by a crashed instance
// can only exist if that instance's pid-file lock was released (i.e., it
// is truly gone).
func WithPidFile(path string) Option {
	return func(d *Daemon) { d.pidFilePath = path }
}

// WithMetrics attaches a Prometheus collector. A nil collector (the
// default) disables instrumentation.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Daemon) { d.metrics = m }
}

// Daemon owns every Listener registered with it and the signal router and
// pid watcher it runs alongside them.
type Daemon struct {
	name   string
	hooks  Hooks
	logger *slog.Logger

	pidFilePath string
	pidFile     *pidfile.File

	metrics *metrics.Collector

	mu        sync.Mutex
	state     State
	listeners []*sockserver.Listener
	runCancel context.CancelFunc

	terminalOnce sync.Once
	terminalErr  error

	// startupRan is set exactly when the startup milestone fires (the
	// zero-delay wakeup elapsing before any terminal event), independent
	// of whether a Startup hook is configured. shutdown() consults it so
	// the Shutdown hook (and its metric) only ever fires once per actual
	// Startup firing, matching the "shutdown count == startup count"
	// invariant even when a terminal event races the zero-delay wakeup.
	startupRan atomic.Bool
}

// Setup validates and prepares a Daemon: acquiring its pid file (if
// configured) but not yet starting any listener or the signal router.
// Call AddListener to register listeners, then Run to start.
func Setup(name string, hooks Hooks, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		name:  name,
		hooks: hooks,
		state: StateInitialized,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With(slog.String("daemon", name))

	if d.pidFilePath != "" {
		pf, err := pidfile.Acquire(d.pidFilePath)
		if err != nil {
			if errors.Is(err, pidfile.ErrAlreadyHeld) {
				return nil, fmt.Errorf("%w: %v", ErrAlreadyRunning, err)
			}
			return nil, fmt.Errorf("daemon: acquiring pid file: %w", err)
		}
		d.pidFile = pf
	}

	return d, nil
}

// removeBeforeBind reports whether a newly added listener should unlink a
// stale socket before binding: true exactly when a pid file was acquired,
// per sock_daemon_add_unix's remove_before_use = (pid_ctx != NULL).
func (d *Daemon) removeBeforeBind() bool {
	return d.pidFile != nil
}

// AddListener registers a Unix-domain listener. It must be called before
// Run; calling it afterward returns ErrInvalidState.
func (d *Daemon) AddListener(path string, hooks sockserver.SocketHooks) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateInitialized {
		return fmt.Errorf("%w: AddListener called after Run", ErrInvalidState)
	}

	ln, err := sockserver.NewListener(sockserver.Config{
		Path:             path,
		Hooks:            hooks,
		RemoveBeforeBind: d.removeBeforeBind(),
		Logger:           d.logger,
		Metrics:          d.metrics,
	})
	if err != nil {
		return err
	}

	d.listeners = append(d.listeners, ln)
	return nil
}

// Run starts every registered listener's accept loop, the signal router,
// and (if pidWatch > 1) a pid watcher for the given pid, then blocks until
// a terminal event occurs: a shutdown signal, a fatal listener failure, or
// the watched pid disappearing. It tears everything down before
// returning. Run can only be called once per Daemon.
func (d *Daemon) Run(pidWatch int) error {
	d.mu.Lock()
	if d.state != StateInitialized {
		d.mu.Unlock()
		return fmt.Errorf("%w: Run called more than once", ErrInvalidState)
	}
	d.state = StateRunning
	listeners := append([]*sockserver.Listener(nil), d.listeners...)
	d.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.mu.Lock()
	d.runCancel = cancel
	d.mu.Unlock()

	router, err := signalrouter.New(d.logger)
	if err != nil {
		d.shutdown(listeners)
		d.mu.Lock()
		d.state = StateDone
		d.mu.Unlock()
		return fmt.Errorf("daemon: %w", err)
	}
	defer router.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return router.Run(gctx, d.wrapReconfigure())
	})

	g.Go(func() error {
		select {
		case <-router.ShutdownRequested():
			d.recordTerminal(nil, cancel)
		case <-gctx.Done():
		}
		return nil
	})

	for _, ln := range listeners {
		ln := ln
		g.Go(func() error {
			runErr := ln.Run()
			if runErr != nil {
				d.recordTerminal(&ListenerFailureError{Path: ln.Path(), Err: runErr}, cancel)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			ln.Close()
			return nil
		})
	}

	if pidWatch > 1 {
		watcher := pidwatch.New(pidWatch, d.logger, d.metrics)
		g.Go(func() error {
			werr := watcher.Run(gctx)
			if werr != nil {
				d.recordTerminal(ErrPidGone, cancel)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-time.After(0):
		case <-gctx.Done():
			return nil
		}
		d.startupRan.Store(true)
		if d.hooks.Startup != nil {
			d.hooks.Startup()
		}
		if d.metrics != nil {
			d.metrics.IncStartup()
		}
		return nil
	})

	_ = g.Wait()

	d.shutdown(listeners)

	d.mu.Lock()
	d.state = StateDone
	d.mu.Unlock()

	return d.terminalErr
}

func (d *Daemon) wrapReconfigure() func() {
	return func() {
		if d.hooks.Reconfigure != nil {
			d.hooks.Reconfigure()
		}
		if d.metrics != nil {
			d.metrics.IncReconfigure()
		}
	}
}

// Stop requests an orderly shutdown from outside the daemon: the
// programmatic counterpart of a shutdown signal or a dead supervising
// process. Run returns nil for it, the same as a clean signal-driven
// shutdown. It is a no-op if Run has not started yet or a terminal event
// already won; safe to call from any goroutine, any number of times.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel := d.runCancel
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	d.recordTerminal(nil, cancel)
}

func (d *Daemon) recordTerminal(err error, cancel context.CancelFunc) {
	d.terminalOnce.Do(func() {
		d.terminalErr = err
		cancel()
	})
}

// shutdown tears the daemon down in the original's order: every listener
// (draining its sessions) first, then the shutdown hook, then the pid file
// released last.
func (d *Daemon) shutdown(listeners []*sockserver.Listener) {
	d.mu.Lock()
	d.state = StateShuttingDown
	d.mu.Unlock()

	for i := len(listeners) - 1; i >= 0; i-- {
		listeners[i].Close()
	}

	if d.startupRan.Load() {
		if d.hooks.Shutdown != nil {
			d.hooks.Shutdown()
		}
		if d.metrics != nil {
			d.metrics.IncShutdown()
		}
	}

	if d.pidFile != nil {
		if err := d.pidFile.Release(); err != nil {
			d.logger.Warn("failed to release pid file", slog.String("error", err.Error()))
		}
	}
}

// State returns the daemon's current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
