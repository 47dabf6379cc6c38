package protocol

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HandshakeOpcode is the only byte a client may open a connection with.
	HandshakeOpcode = 15

	// HandshakeAckSize is the length of the all zero handshake acknowledgement.
	HandshakeAckSize = 8

	// RequestSize is the length of a request frame.
	RequestSize = 4

	// ChunkHeaderSize is the length of a response chunk header.
	ChunkHeaderSize = 6

	// BlockSize is the maximum payload carried by a single response chunk.
	BlockSize = 500

	// MaxArchiveSize is the largest archive length the 16 bit size field can carry.
	MaxArchiveSize = 0xFFFF
)

var (
	ErrRequestTooShort     = errors.New("Request is malformed, it is shorter than a request frame")
	ErrHandshakeRejected   = errors.New("Handshake was rejected by the server")
	ErrHandshakeMalformed  = errors.New("Handshake acknowledgement is malformed, expected only zero bytes")
	ErrChunkPayloadInvalid = errors.New("Chunk is malformed, its size and block do not fit together")
)

// ParseRequest decodes a single request frame from the start of data.
func ParseRequest(data []byte) (Request, error) {
	if len(data) < RequestSize {
		return Request{}, ErrRequestTooShort
	}

	return Request{
		Index:    data[0],
		Archive:  uint16(data[1])<<8 | uint16(data[2]),
		Priority: PriorityFromSelector(data[3]),
	}, nil
}

// ParseRequests decodes every whole request frame in data. It returns the
// decoded requests and the number of bytes they used; any trailing partial
// frame is left for the caller to complete later.
func ParseRequests(data []byte) ([]Request, int) {
	n := len(data) / RequestSize
	if n == 0 {
		return nil, 0
	}

	reqs := make([]Request, 0, n)
	for off := 0; off+RequestSize <= len(data); off += RequestSize {
		// The length check in ParseRequest can't fail here
		req, _ := ParseRequest(data[off : off+RequestSize])
		reqs = append(reqs, req)
	}

	return reqs, n * RequestSize
}

// ReadHandshakeAck reads the server's reply to a handshake.
func ReadHandshakeAck(r io.Reader) error {
	var ack [HandshakeAckSize]byte
	if _, err := io.ReadFull(r, ack[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrHandshakeRejected
		}

		return err
	}

	for _, b := range ack {
		if b != 0 {
			return ErrHandshakeMalformed
		}
	}

	return nil
}

// ReadChunk reads one response chunk. The payload length is derived from the
// header's size and block fields, just as a client must do.
func ReadChunk(r io.Reader) (*Chunk, error) {
	var header [ChunkHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	chunk := &Chunk{
		Index:   header[0],
		Archive: uint16(header[1])<<8 | uint16(header[2]),
		Size:    uint16(header[3])<<8 | uint16(header[4]),
		Block:   header[5],
	}

	if chunk.Size > 0 && chunk.Offset() >= int(chunk.Size) {
		return nil, fmt.Errorf("Failed to read chunk for %d/%d block %d: %w",
			chunk.Index, chunk.Archive, chunk.Block, ErrChunkPayloadInvalid)
	}

	chunk.Payload = make([]byte, PayloadLength(int(chunk.Size), int(chunk.Block)))
	if _, err := io.ReadFull(r, chunk.Payload); err != nil {
		return nil, err
	}

	return chunk, nil
}
