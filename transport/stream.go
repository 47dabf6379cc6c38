package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// pollWait bounds a read on connections that can't be read without blocking.
const pollWait = time.Millisecond

// Stream is the byte stream a Session is driven over. None of its methods may
// block for long: Poll only returns bytes that have already arrived and
// writes are bounded by a deadline.
type Stream interface {
	// Poll reads bytes that have already arrived into p. It returns 0 and a
	// nil error when nothing is waiting.
	Poll(p []byte) (int, error)

	io.Writer

	// Flush pushes buffered writes onto the connection.
	Flush() error

	RemoteAddr() string

	Close() error
}

type connStream struct {
	conn         net.Conn
	w            *bufio.Writer
	writeTimeout time.Duration
}

// NewConnStream wraps an accepted connection. writeTimeout bounds each Flush,
// 0 disables the bound.
func NewConnStream(conn net.Conn, writeTimeout time.Duration) Stream {
	return &connStream{
		conn:         conn,
		w:            bufio.NewWriter(conn),
		writeTimeout: writeTimeout,
	}
}

func (c *connStream) Poll(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	return pollRead(c.conn, p)
}

func (c *connStream) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *connStream) Flush() error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	return c.w.Flush()
}

func (c *connStream) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}

func (c *connStream) Close() error {
	return c.conn.Close()
}

// deadlinePoll reads from conn waiting at most pollWait. It serves
// connections that don't expose a raw descriptor.
func deadlinePoll(conn net.Conn, p []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(pollWait)); err != nil {
		return 0, err
	}

	n, err := conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}

	return n, err
}
