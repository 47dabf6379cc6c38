package transport

import (
	"errors"
	"fmt"
)

var (
	ErrHandshakeViolation = errors.New("Client opened with an invalid handshake")
	ErrHandshakeTimeout   = errors.New("Client did not handshake in time")
	ErrIdleTimeout        = errors.New("Client was idle for too long")
	ErrQueueOverfull      = errors.New("Client overfilled a request queue")
	ErrServerClosed       = errors.New("Server is shutting down")
	ErrListenerDeadline   = errors.New("Listener does not support accept deadlines")
)

// DisconnectReason classifies why a session was destroyed.
type DisconnectReason int

const (
	ReasonTransportError DisconnectReason = iota
	ReasonHandshakeViolation
	ReasonHandshakeTimeout
	ReasonIdleTimeout
	ReasonQueueOverfull
	ReasonServerClosed
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonHandshakeViolation:
		return "handshake_violation"
	case ReasonHandshakeTimeout:
		return "handshake_timeout"
	case ReasonIdleTimeout:
		return "idle_timeout"
	case ReasonQueueOverfull:
		return "queue_overfull"
	case ReasonServerClosed:
		return "server_closed"
	default:
		return "transport_error"
	}
}

// DisconnectError is returned by Session.Advance when the session must be
// destroyed.
type DisconnectError struct {
	Reason DisconnectReason
	Err    error
}

func disconnect(reason DisconnectReason, err error) *DisconnectError {
	return &DisconnectError{Reason: reason, Err: err}
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("disconnected (%s): %v", e.Reason, e.Err)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the disconnect reason carried by err. Errors that are not
// a DisconnectError count as transport errors.
func ReasonOf(err error) DisconnectReason {
	var de *DisconnectError
	if errors.As(err, &de) {
		return de.Reason
	}

	return ReasonTransportError
}
