package protocol

import (
	"io"
)

var handshakeAck [HandshakeAckSize]byte

// WriteHandshake writes the opening byte a client sends.
func WriteHandshake(w io.Writer) error {
	_, err := w.Write([]byte{HandshakeOpcode})
	return err
}

// WriteHandshakeAck writes the server's acknowledgement of a valid handshake.
func WriteHandshakeAck(w io.Writer) error {
	_, err := w.Write(handshakeAck[:])
	return err
}

// WriteRequest writes a single request frame.
func WriteRequest(w io.Writer, req Request) error {
	_, err := w.Write(AppendRequest(nil, req))
	return err
}

// AppendRequest appends the frame encoding of req to dst.
func AppendRequest(dst []byte, req Request) []byte {
	return append(dst,
		req.Index,
		byte(req.Archive>>8),
		byte(req.Archive),
		req.Priority.Selector())
}

// AppendChunkHeader appends the 6 byte header of c to dst.
func AppendChunkHeader(dst []byte, c *Chunk) []byte {
	return append(dst,
		c.Index,
		byte(c.Archive>>8),
		byte(c.Archive),
		byte(c.Size>>8),
		byte(c.Size),
		c.Block)
}

// WriteChunk writes the header of c followed by its payload and returns the
// number of payload bytes written.
func WriteChunk(w io.Writer, c *Chunk) (int, error) {
	var header [ChunkHeaderSize]byte
	if _, err := w.Write(AppendChunkHeader(header[:0], c)); err != nil {
		return 0, err
	}

	if len(c.Payload) == 0 {
		return 0, nil
	}

	return w.Write(c.Payload)
}
