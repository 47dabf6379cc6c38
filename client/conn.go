// Package client speaks the on-demand protocol from the client side. It is
// used by the fetch command and by tests, one request at a time.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/luma/ondemand/protocol"
)

var ErrUnexpectedChunk = errors.New("Received a chunk that does not continue the archive being fetched")

type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	log *zap.Logger
}

// Dial connects to addr and performs the handshake. ctx bounds both the dial
// and the handshake.
func Dial(ctx context.Context, addr string, log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		conn: conn,
		r:    bufio.NewReader(conn),
		log:  log.With(zap.String("addr", addr)),
	}

	stop := c.bind(ctx)
	defer stop()

	if err := protocol.WriteHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if err := protocol.ReadHandshakeAck(c.r); err != nil {
		conn.Close()
		return nil, fmt.Errorf("Failed to handshake with %s: %w", addr, err)
	}

	c.log.Debug("Handshake complete")

	return c, nil
}

// Request sends a single request frame.
func (c *Conn) Request(req protocol.Request) error {
	return protocol.WriteRequest(c.conn, req)
}

// ReadChunk reads the next response chunk, whichever request it belongs to.
func (c *Conn) ReadChunk() (*protocol.Chunk, error) {
	return protocol.ReadChunk(c.r)
}

// Fetch requests one archive and reads chunks until it is complete. Absent
// and empty archives both come back as an empty slice. No other request may
// be outstanding on the connection.
func (c *Conn) Fetch(ctx context.Context, index uint8, archive uint16, priority protocol.Priority) ([]byte, error) {
	stop := c.bind(ctx)
	defer stop()

	if err := c.Request(protocol.Request{Index: index, Archive: archive, Priority: priority}); err != nil {
		return nil, err
	}

	var (
		data     []byte
		received int
	)

	for block := 0; ; block++ {
		chunk, err := c.ReadChunk()
		if err != nil {
			return nil, c.contextErr(ctx, err)
		}

		if chunk.Index != index || chunk.Archive != archive || int(chunk.Block) != block&0xFF {
			return nil, fmt.Errorf("Failed to fetch %d/%d, got %d/%d block %d: %w",
				index, archive, chunk.Index, chunk.Archive, chunk.Block, ErrUnexpectedChunk)
		}

		if data == nil {
			data = make([]byte, chunk.Size)
		}

		received += copy(data[received:], chunk.Payload)
		if received >= len(data) {
			break
		}
	}

	c.log.Debug("Fetched archive",
		zap.Uint8("index", index),
		zap.Uint16("archive", archive),
		zap.Int("size", len(data)))

	return data, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// bind makes blocking reads and writes give up once ctx is done. The returned
// func must be called when the operation completes.
func (c *Conn) bind(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})

	return func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}
}

func (c *Conn) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}
