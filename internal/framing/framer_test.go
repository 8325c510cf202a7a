package framing_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/sockd/internal/framing"
)

func TestWriteFrameThenReadFrame(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	clientFramer := framing.New(client)
	serverFramer := framing.New(server)

	want := []byte("hello sockd")
	errCh := make(chan error, 1)
	go func() {
		errCh <- clientFramer.WriteFrame(context.Background(), want)
	}()

	got, err := serverFramer.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReadFrameEmptyPayload(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	clientFramer := framing.New(client)
	serverFramer := framing.New(server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- clientFramer.WriteFrame(context.Background(), nil)
	}()

	got, err := serverFramer.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d bytes, want 0", len(got))
	}
}

func TestReadFrameRejectsOversizedDeclaredLength(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	serverFramer := framing.NewWithLimit(server, 8)
	clientFramer := framing.New(client)

	errCh := make(chan error, 1)
	go func() {
		errCh <- clientFramer.WriteFrame(context.Background(), make([]byte, 9))
	}()

	_, err := serverFramer.ReadFrame(context.Background())
	if !errors.Is(err, framing.ErrFrameTooLarge) {
		t.Fatalf("got err %v, want ErrFrameTooLarge", err)
	}
	// ReadFrame stops after the header, so the writer is still blocked on
	// the unread payload; closing the reading end releases it.
	_ = server.Close()
	<-errCh
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	clientFramer := framing.NewWithLimit(client, 4)

	err := clientFramer.WriteFrame(context.Background(), make([]byte, 5))
	if !errors.Is(err, framing.ErrFrameTooLarge) {
		t.Fatalf("got err %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFramePropagatesPeerClose(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	serverFramer := framing.New(server)

	_ = client.Close()

	_, err := serverFramer.ReadFrame(context.Background())
	if err == nil {
		t.Fatal("expected an error after peer close, got nil")
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("unexpected error after peer close: %v", err)
	}
	_ = server.Close()
}

func TestReadFrameHonorsContextDeadline(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	serverFramer := framing.New(server)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := serverFramer.ReadFrame(ctx)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected a timeout error, got %v", err)
	}
}
