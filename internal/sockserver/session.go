package sockserver

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// SocketHooks is the hook table a Listener dispatches to for every client.
// Connect and Disconnect are optional; ReadBegin is required (NewListener
// rejects a hook table that leaves it nil). All three close over whatever
// state the using binary needs — there is no separate user-data parameter,
// Go closures already do that job.
type SocketHooks struct {
	// Connect is called once a client is accepted, before any frame is
	// read. Returning false rejects the client: the connection is closed
	// immediately and no other hook (including Disconnect) ever runs for
	// it. A nil Connect always accepts.
	Connect func(s *ClientSession) bool

	// Disconnect is called when a session is about to be destroyed, for
	// every destruction path except a Connect rejection. It runs at most
	// once per session.
	Disconnect func(s *ClientSession)

	// ReadBegin is called with one complete inbound frame. It must
	// return a non-nil PendingOp; the session will not read the next
	// frame until that op resolves. A failure destroys the session.
	ReadBegin func(s *ClientSession, frame []byte) *PendingOp
}

// ClientSession is one accepted, framed connection. It is created by a
// Listener on accept and destroyed when the peer disconnects, an I/O
// operation fails, the read hook fails, or the parent Listener is torn
// down. Sessions never outlive their Listener.
type ClientSession struct {
	id       uint64
	listener *Listener
	conn     net.Conn
	framer   Framer
	hooks    SocketHooks
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	teardownOnce sync.Once
	rejected     bool
}

func newClientSession(id uint64, l *Listener, conn net.Conn) *ClientSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &ClientSession{
		id:       id,
		listener: l,
		conn:     conn,
		framer:   l.newFramer(conn),
		hooks:    l.hooks,
		logger:   l.logger.With(slog.Uint64("session", id)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID is a process-local, monotonically increasing session identifier,
// unique for the lifetime of the owning Listener.
func (s *ClientSession) ID() uint64 { return s.id }

// Listener returns the session's owning Listener.
func (s *ClientSession) Listener() *Listener { return s.listener }

// PeerCredentials returns the connecting process's pid/uid/gid via
// SO_PEERCRED, when the underlying connection is a Unix socket and the
// platform supports it.
func (s *ClientSession) PeerCredentials() (unix.Ucred, bool) {
	uc, ok := peerCred(s.conn)
	return uc, ok
}

// Write queues one outbound frame and returns a PendingOp that resolves
// once it has been written (or failed). Writes from multiple goroutines
// are serialized onto the Framer.
func (s *ClientSession) Write(payload []byte) *PendingOp {
	op := NewPendingOp()
	go func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		op.Resolve(s.framer.WriteFrame(s.ctx, payload))
	}()
	return op
}

// Close tears the session down immediately. Safe to call more than once
// and safe to call concurrently with the session's own serve loop.
func (s *ClientSession) Close() {
	s.teardown()
}

// serve runs the session's serial read/hook loop until the peer
// disconnects, an operation fails, or the session is closed. It always
// calls teardown exactly once before returning.
func (s *ClientSession) serve() {
	defer s.teardown()

	if s.hooks.Connect != nil && !s.hooks.Connect(s) {
		s.rejected = true
		s.logger.Debug("connect hook rejected client")
		return
	}

	s.listener.metricsIncConnect()

	for {
		frame, err := s.framer.ReadFrame(s.ctx)
		if err != nil {
			s.logger.Debug("session read ended", slog.String("error", err.Error()))
			return
		}

		s.listener.metricsIncReadBegin()
		op := s.hooks.ReadBegin(s, frame)
		if op == nil {
			// Defensive: a hook table that returns a nil op is treated as
			// an immediate success so a misbehaving hook can't wedge the
			// read loop forever.
			continue
		}

		select {
		case <-s.ctx.Done():
			// The result of an abandoned op is never observed.
			s.logger.Debug("readBegin abandoned", slog.String("error", errSessionCancelled.Error()))
			return
		case opErr := <-op.ch:
			if opErr != nil {
				s.logger.Debug("readBegin failed, destroying session", slog.String("error", opErr.Error()))
				return
			}
		}
	}
}

func (s *ClientSession) teardown() {
	s.teardownOnce.Do(func() {
		s.cancel()
		if !s.rejected {
			if s.hooks.Disconnect != nil {
				s.hooks.Disconnect(s)
			}
			s.listener.metricsIncDisconnect()
		}
		_ = s.conn.Close()
		_ = s.framer.Close()
		s.listener.removeSession(s.id)
	})
}
