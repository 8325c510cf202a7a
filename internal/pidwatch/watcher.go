// Package pidwatch implements liveness supervision of an external pid: a
// null-signal probe one second after startup, then every five seconds
// thereafter, exactly as the original sock_daemon_watch_pid timing.
package pidwatch

import (
	"context"
	"errors"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/sockd/internal/metrics"
)

// InitialDelay is the time from Run starting to the first probe.
const InitialDelay = 1 * time.Second

// Interval is the time between every probe after the first.
const Interval = 5 * time.Second

// ErrGone is returned by Run when the watched pid no longer exists
// (probe failed with ESRCH). Any other probe failure (including EPERM,
// when the pid exists but is owned by another user) is treated as
// transient and logged, matching the original's "any other errno"
// catch-all.
var ErrGone = errors.New("pidwatch: supervising process is gone")

// Watcher probes a single pid on a fixed schedule.
type Watcher struct {
	pid     int
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New returns a Watcher for pid. A nil logger defaults to slog.Default();
// a nil metrics collector disables instrumentation.
func New(pid int, logger *slog.Logger, m *metrics.Collector) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{pid: pid, logger: logger.With(slog.Int("watched_pid", pid)), metrics: m}
}

// Run probes the watched pid until it is confirmed gone (returns ErrGone)
// or ctx is cancelled (returns nil).
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if w.metrics != nil {
			w.metrics.IncPidWatchProbe()
		}

		if err := probe(w.pid); err != nil {
			if errors.Is(err, unix.ESRCH) {
				w.logger.Error("supervising process is gone")
				return ErrGone
			}
			w.logger.Warn("pid probe failed, treating as transient", slog.String("error", err.Error()))
		}

		timer.Reset(Interval)
	}
}

func probe(pid int) error {
	err := unix.Kill(pid, syscall.Signal(0))
	return err
}
