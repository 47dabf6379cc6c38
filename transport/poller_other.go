//go:build !unix

package transport

import "net"

func pollRead(conn net.Conn, p []byte) (int, error) {
	return deadlinePoll(conn, p)
}
