package sockserver

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCred extracts SO_PEERCRED from a Unix-domain connection. It returns
// false for any connection type that doesn't expose a raw file descriptor
// the usual way.
func peerCred(conn net.Conn) (unix.Ucred, bool) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return unix.Ucred{}, false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return unix.Ucred{}, false
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return unix.Ucred{}, false
	}
	return *cred, true
}
