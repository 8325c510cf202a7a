package sockserver

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

func sizeofSunPath() int {
	var sa unix.RawSockaddrUnix
	return len(sa.Path)
}

// Framer is the wire-format collaborator a Listener delegates all I/O to.
// Message framing and payload semantics are out of this package's scope;
// Framer is the seam where a using binary plugs those in. internal/framing
// provides a default length-prefixed implementation.
type Framer interface {
	// ReadFrame blocks for exactly one complete inbound frame. It returns
	// an error (including io.EOF) when the peer closes or the connection
	// fails; ctx carries no deadline guarantee beyond what the
	// implementation chooses to honor.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteFrame writes one complete outbound frame.
	WriteFrame(ctx context.Context, payload []byte) error

	// Close releases any resources the Framer itself owns. It does not
	// close the underlying connection; the session owns that.
	Close() error
}

// FramerFactory builds a Framer over an accepted connection. Listener calls
// it once per accepted client.
type FramerFactory func(conn net.Conn) Framer

// PendingOp represents the single asynchronous hook in the framework:
// SocketHooks.ReadBegin returns one, and the session that issued it
// suspends until it resolves. A PendingOp resolves exactly once; further
// calls to Resolve are no-ops, matching talloc-free "double free" vs.
// Go's more forgiving "second write is dropped" semantics.
type PendingOp struct {
	ch   chan error
	once sync.Once
}

// NewPendingOp returns a PendingOp ready to be resolved by user code, from
// any goroutine, at any later time.
func NewPendingOp() *PendingOp {
	return &PendingOp{ch: make(chan error, 1)}
}

// Resolve completes the operation with err (nil for success). Safe to call
// from any goroutine; only the first call has an effect.
func (p *PendingOp) Resolve(err error) {
	p.once.Do(func() {
		p.ch <- err
	})
}

// Wait blocks until the operation resolves or ctx is done, whichever comes
// first. It is provided for callers outside the package (a using binary's
// own code that issues writes via ClientSession.Write); the session's own
// read loop waits on a PendingOp without this method, since it also needs
// to react to the session being torn down mid-wait.
func (p *PendingOp) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-p.ch:
		return err
	}
}
