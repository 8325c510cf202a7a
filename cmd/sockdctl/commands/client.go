package commands

import (
	"context"
	"fmt"
	"net"

	"github.com/dantte-lp/sockd/internal/framing"
)

// dial connects to socketPath with ctx's deadline applied to the dial
// itself, and returns a Framer ready to exchange frames over it.
func dial(ctx context.Context) (net.Conn, *framing.Framer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return conn, framing.New(conn), nil
}

// roundTrip connects, sends one frame, awaits exactly one response frame,
// and closes the connection — mirroring dummy_client.c's connect/send/
// recv/timeout shape.
func roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	conn, framer, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := framer.WriteFrame(ctx, payload); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := framer.ReadFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
