// Package pidfile implements single-instance enforcement via an exclusive,
// advisory flock(2) on a pid file, released automatically when the
// process exits even if it is killed without a chance to clean up.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrAlreadyHeld indicates another process already holds the lock on this
// pid file.
var ErrAlreadyHeld = errors.New("pidfile: already held by another process")

// File is an acquired pid-file lock. The zero value is not usable; obtain
// one from Acquire.
type File struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// Acquire opens (creating if necessary) the pid file at path, takes a
// non-blocking exclusive flock on it, and writes the current process's pid.
// It returns ErrAlreadyHeld if another live process holds the lock.
func Acquire(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyHeld, path)
		}
		return nil, fmt.Errorf("pidfile: flock %s: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pidfile: truncate %s: %w", path, err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pidfile: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pidfile: sync %s: %w", path, err)
	}

	return &File{path: path, f: f}, nil
}

// Path returns the pid file's path.
func (p *File) Path() string { return p.path }

// Release unlocks, closes, and removes the pid file. Safe to call more
// than once.
func (p *File) Release() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.f == nil {
		return nil
	}

	_ = unix.Flock(int(p.f.Fd()), unix.LOCK_UN)
	err := p.f.Close()
	p.f = nil

	if rmErr := os.Remove(p.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = fmt.Errorf("pidfile: remove %s: %w", p.path, rmErr)
	}
	return err
}
