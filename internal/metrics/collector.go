// Package metrics exposes the daemon's Prometheus collector: listener and
// session lifecycle counters that mirror the cardinalities the core
// guarantees (see the framework's testable properties), so a deployed
// daemon's adherence to them is directly observable.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sockd"

const labelListener = "listener"

// Collector holds all daemon-level Prometheus metrics. Every call site in
// sockserver/daemon/pidwatch that takes an optional *Collector guards with
// a nil check first, so wiring metrics is always optional.
type Collector struct {
	// SessionsActive tracks currently connected client sessions, per
	// listener. Incremented when a client passes the connect hook (or had
	// none), decremented when that session is torn down.
	SessionsActive *prometheus.GaugeVec

	// ConnectTotal counts accepted connections that passed the connect
	// hook (or had none), per listener.
	ConnectTotal *prometheus.CounterVec

	// DisconnectTotal counts sessions torn down after having been
	// connected (excludes connect-hook rejections), per listener.
	DisconnectTotal *prometheus.CounterVec

	// ReadBeginTotal counts inbound frames dispatched to the read hook,
	// per listener.
	ReadBeginTotal *prometheus.CounterVec

	// AcceptErrorsTotal counts transient accept failures that were
	// retried, per listener.
	AcceptErrorsTotal *prometheus.CounterVec

	// ListenerFailuresTotal counts fatal listener failures, per listener.
	ListenerFailuresTotal *prometheus.CounterVec

	// ReconfigureTotal counts completed reconfigure hook invocations.
	ReconfigureTotal prometheus.Counter

	// StartupTotal counts daemon startup hook invocations (0 or 1 per run).
	StartupTotal prometheus.Counter

	// ShutdownTotal counts daemon shutdown hook invocations (0 or 1 per run).
	ShutdownTotal prometheus.Counter

	// PidWatchProbeTotal counts liveness probes issued by the pid watcher.
	PidWatchProbeTotal prometheus.Counter
}

// NewCollector creates a Collector with all daemon metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.ConnectTotal,
		c.DisconnectTotal,
		c.ReadBeginTotal,
		c.AcceptErrorsTotal,
		c.ListenerFailuresTotal,
		c.ReconfigureTotal,
		c.StartupTotal,
		c.ShutdownTotal,
		c.PidWatchProbeTotal,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	listenerLabels := []string{labelListener}

	return &Collector{
		SessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected client sessions.",
		}, listenerLabels),

		ConnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_total",
			Help:      "Total accepted client connections that passed the connect hook.",
		}, listenerLabels),

		DisconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnect_total",
			Help:      "Total client sessions torn down after being connected.",
		}, listenerLabels),

		ReadBeginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_begin_total",
			Help:      "Total inbound frames dispatched to the read hook.",
		}, listenerLabels),

		AcceptErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Total transient accept failures that were retried.",
		}, listenerLabels),

		ListenerFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Total fatal listener failures.",
		}, listenerLabels),

		ReconfigureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconfigure_total",
			Help:      "Total completed reconfigure hook invocations.",
		}),

		StartupTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "startup_total",
			Help:      "Total daemon startup hook invocations.",
		}),

		ShutdownTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_total",
			Help:      "Total daemon shutdown hook invocations.",
		}),

		PidWatchProbeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pidwatch_probe_total",
			Help:      "Total supervising-pid liveness probes issued.",
		}),
	}
}

// IncSessionsActive increments the active-sessions gauge for listener.
func (c *Collector) IncSessionsActive(listener string) {
	c.SessionsActive.WithLabelValues(listener).Inc()
}

// DecSessionsActive decrements the active-sessions gauge for listener.
func (c *Collector) DecSessionsActive(listener string) {
	c.SessionsActive.WithLabelValues(listener).Dec()
}

// IncConnect increments the accepted-connection counter for listener and
// the active-sessions gauge alongside it.
func (c *Collector) IncConnect(listener string) {
	c.ConnectTotal.WithLabelValues(listener).Inc()
	c.IncSessionsActive(listener)
}

// IncDisconnect increments the disconnect counter for listener and
// decrements the active-sessions gauge alongside it.
func (c *Collector) IncDisconnect(listener string) {
	c.DisconnectTotal.WithLabelValues(listener).Inc()
	c.DecSessionsActive(listener)
}

// IncReadBegin increments the read-hook-dispatch counter for listener.
func (c *Collector) IncReadBegin(listener string) {
	c.ReadBeginTotal.WithLabelValues(listener).Inc()
}

// IncAcceptErrors increments the transient-accept-error counter for listener.
func (c *Collector) IncAcceptErrors(listener string) {
	c.AcceptErrorsTotal.WithLabelValues(listener).Inc()
}

// IncListenerFailures increments the fatal-listener-failure counter for
// listener.
func (c *Collector) IncListenerFailures(listener string) {
	c.ListenerFailuresTotal.WithLabelValues(listener).Inc()
}

// IncReconfigure increments the reconfigure-hook counter.
func (c *Collector) IncReconfigure() { c.ReconfigureTotal.Inc() }

// IncStartup increments the startup-hook counter.
func (c *Collector) IncStartup() { c.StartupTotal.Inc() }

// IncShutdown increments the shutdown-hook counter.
func (c *Collector) IncShutdown() { c.ShutdownTotal.Inc() }

// IncPidWatchProbe increments the pid-watch probe counter.
func (c *Collector) IncPidWatchProbe() { c.PidWatchProbeTotal.Inc() }
