package pidfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/dantte-lp/sockd/internal/pidfile"
)

func TestAcquireWritesPid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sockd.pid")

	f, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = f.Release() })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file contains %q, want %d", data, os.Getpid())
	}
}

func TestAcquireTwiceFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sockd.pid")

	first, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	t.Cleanup(func() { _ = first.Release() })

	_, err = pidfile.Acquire(path)
	if !errors.Is(err, pidfile.ErrAlreadyHeld) {
		t.Fatalf("second Acquire err = %v, want ErrAlreadyHeld", err)
	}
}

func TestReleaseRemovesFileAndIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sockd.pid")

	f, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := f.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file still exists after Release: err=%v", err)
	}
	if err := f.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestReacquireAfterRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sockd.pid")

	first, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := pidfile.Acquire(path)
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	_ = second.Release()
}
