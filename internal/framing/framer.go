// Package framing provides the module's own default wire codec: a simple
// length-prefixed frame format (a 4-byte big-endian length followed by that
// many payload bytes). It exists because the core's Framer collaborator is
// intentionally payload-agnostic; this is one concrete implementation of
// it, not a requirement to use it.
package framing

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// DefaultMaxFrameSize bounds the length prefix a Framer will accept before
// allocating a buffer for the payload, guarding against a peer that sends
// a bogus length and forces an unbounded allocation.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a frame's declared or actual size
// exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum size")

const lengthPrefixSize = 4

// Framer implements sockserver.Framer over a net.Conn using a 4-byte
// length-prefixed frame format.
type Framer struct {
	conn    net.Conn
	r       io.Reader
	maxSize uint32

	writeMu sync.Mutex
}

// New returns a Framer over conn with DefaultMaxFrameSize as its limit.
func New(conn net.Conn) *Framer {
	return NewWithLimit(conn, DefaultMaxFrameSize)
}

// NewWithLimit returns a Framer over conn with an explicit maximum frame
// size.
func NewWithLimit(conn net.Conn, maxSize uint32) *Framer {
	return &Framer{conn: conn, r: conn, maxSize: maxSize}
}

// ReadFrame reads one length-prefixed frame, honoring ctx's deadline (if
// any) as the connection's read deadline.
func (f *Framer) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := f.applyDeadline(ctx, f.conn.SetReadDeadline); err != nil {
		return nil, err
	}

	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > f.maxSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds limit %d", ErrFrameTooLarge, n, f.maxSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame, honoring ctx's deadline (if
// any) as the connection's write deadline. Concurrent calls are serialized.
func (f *Framer) WriteFrame(ctx context.Context, payload []byte) error {
	if uint32(len(payload)) > f.maxSize {
		return fmt.Errorf("%w: payload size %d exceeds limit %d", ErrFrameTooLarge, len(payload), f.maxSize)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.applyDeadline(ctx, f.conn.SetWriteDeadline); err != nil {
		return err
	}

	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	if _, err := f.conn.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := f.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the Framer does not own the underlying connection.
func (f *Framer) Close() error { return nil }

func (f *Framer) applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if dl, ok := ctx.Deadline(); ok {
		return set(dl)
	}
	return set(time.Time{})
}
