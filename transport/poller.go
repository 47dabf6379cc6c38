//go:build unix

package transport

import (
	"io"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// pollRead performs a single non-blocking read on the connection's
// descriptor, the equivalent of reading only what is already available.
func pollRead(conn net.Conn, p []byte) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return deadlinePoll(conn, p)
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}

	var (
		n     int
		opErr error
	)

	// Returning true tells the runtime not to park us waiting for readiness
	err = raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		return true
	})
	if err != nil {
		return 0, err
	}

	switch {
	case opErr == unix.EAGAIN || opErr == unix.EINTR:
		return 0, nil
	case opErr != nil:
		return 0, opErr
	case n == 0:
		return 0, io.EOF
	}

	return n, nil
}
