// Command sockd is a demonstration daemon wiring the event-driven UDS
// server core (internal/daemon, internal/sockserver) into a complete,
// supervisable process: koanf-loaded configuration, structured logging
// with SIGHUP-driven level reload, a Prometheus metrics endpoint, and
// systemd sd_notify/watchdog integration.
//
// The payload it speaks is deliberately trivial (it echoes every inbound
// frame back to the sender): the core is payload-agnostic, and the demo
// exists to exercise the framework end to end, not to define a protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	sockconfig "github.com/dantte-lp/sockd/internal/config"
	sockdaemon "github.com/dantte-lp/sockd/internal/daemon"
	"github.com/dantte-lp/sockd/internal/metrics"
	"github.com/dantte-lp/sockd/internal/sockserver"
	appversion "github.com/dantte-lp/sockd/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	pidWatch := flag.Int("pid-watch", 0, "supervising pid to watch (0 or 1 disables)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(sockconfig.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("sockd starting",
		slog.String("version", appversion.Version),
		slog.String("name", cfg.Name),
		slog.Int("listeners", len(cfg.Listeners)),
		slog.String("metrics_addr", cfg.Metrics.Addr))

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	d, err := sockdaemon.Setup(cfg.Name, sockdaemon.Hooks{
		Startup:     func() { notifyReady(logger) },
		Reconfigure: func() { reloadLogLevel(*configPath, logLevel, logger) },
		Shutdown:    func() { notifyStopping(logger) },
	},
		sockdaemon.WithLogger(logger),
		sockdaemon.WithPidFile(cfg.PidFile),
		sockdaemon.WithMetrics(collector),
	)
	if err != nil {
		logger.Error("daemon setup failed", slog.String("error", err.Error()))
		return 1
	}

	for _, lc := range cfg.Listeners {
		if err := d.AddListener(lc.Path, echoHooks(logger)); err != nil {
			logger.Error("failed to add listener",
				slog.String("path", lc.Path), slog.String("error", err.Error()))
			return 1
		}
	}

	effectivePidWatch := cfg.PidWatch
	if *pidWatch > 1 {
		effectivePidWatch = *pidWatch
	}

	if err := runDaemonAndSidecars(d, reg, cfg, logger, effectivePidWatch); err != nil {
		logger.Error("sockd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("sockd stopped")
	return 0
}

// runDaemonAndSidecars runs the daemon's own event loop alongside the
// metrics HTTP server and the systemd watchdog keepalive, in an errgroup
// whose context is cancelled when the daemon's Run returns or a sidecar
// fails with an error (a sidecar that returns nil, such as the watchdog
// when none is configured, cancels nothing) — the daemon's Run is the one
// that is expected to terminate this process; the sidecars are torn down
// in its wake.
func runDaemonAndSidecars(
	d *sockdaemon.Daemon,
	reg *prometheus.Registry,
	cfg *sockconfig.Config,
	logger *slog.Logger,
	pidWatch int,
) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		err := listenAndServe(gctx, metricsSrv, cfg.Metrics.Addr)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("metrics server failed, stopping daemon", slog.String("error", err.Error()))
			d.Stop()
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return runWatchdog(gctx, logger)
	})

	var runErr error
	g.Go(func() error {
		defer cancel()
		runErr = d.Run(pidWatch)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("sidecar goroutine exited with error", slog.String("error", err.Error()))
	}

	return runErr
}

// echoHooks builds SocketHooks for the demo protocol: accept every client,
// echo every inbound frame back to the sender.
func echoHooks(logger *slog.Logger) sockserver.SocketHooks {
	return sockserver.SocketHooks{
		Connect: func(s *sockserver.ClientSession) bool {
			logger.Debug("client connected", slog.Uint64("session", s.ID()))
			return true
		},
		Disconnect: func(s *sockserver.ClientSession) {
			logger.Debug("client disconnected", slog.Uint64("session", s.ID()))
		},
		ReadBegin: func(s *sockserver.ClientSession, frame []byte) *sockserver.PendingOp {
			op := sockserver.NewPendingOp()
			writeOp := s.Write(frame)
			go func() {
				op.Resolve(writeOp.Wait(context.Background()))
			}()
			return op
		},
	}
}

// -------------------------------------------------------------------------
// Systemd integration
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd at half the
// configured watchdog interval. Exits immediately if no watchdog is
// configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		return nil
	}

	tick := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval), slog.Duration("keepalive_interval", tick))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", err.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Config / logging reload
// -------------------------------------------------------------------------

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current log level",
			slog.String("error", err.Error()))
		return
	}
	old := logLevel.Level()
	next := sockconfig.ParseLogLevel(cfg.Log.Level)
	logLevel.Set(next)
	logger.Info("configuration reloaded",
		slog.String("old_log_level", old.String()), slog.String("new_log_level", next.String()))
}

func loadConfig(path string) (*sockconfig.Config, error) {
	if path != "" {
		cfg, err := sockconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return sockconfig.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg sockconfig.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg sockconfig.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
