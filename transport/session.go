package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/luma/ondemand/protocol"
	"github.com/luma/ondemand/storage"
)

// inboundSize bounds how many unread bytes a session pulls off its
// connection per tick. Anything beyond it waits in the socket.
const inboundSize = 1024

// SessionState is the protocol state of a Session.
type SessionState int

const (
	Connecting SessionState = iota
	Active
	Disconnected
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Active:
		return "Active"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration

	// Now is the session's clock, time.Now if nil
	Now func() time.Time

	Log *zap.Logger
}

// Session is the protocol state of one client connection. It is driven one
// step at a time by Advance and must only ever be touched by one goroutine.
type Session struct {
	id     uint32
	state  SessionState
	stream Stream
	store  storage.Store

	// deadline is the handshake or idle expiry, zero when disabled
	deadline time.Time
	queues   [3]*RequestQueue

	inbound [inboundSize]byte
	pending int

	idleTimeout time.Duration
	now         func() time.Time
	metrics     *metrics
	log         *zap.Logger
}

// NewSession creates a session in the Connecting state with its handshake
// deadline armed.
func NewSession(id uint32, stream Stream, store storage.Store, opts SessionOptions) *Session {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		id:          id,
		state:       Connecting,
		stream:      stream,
		store:       store,
		idleTimeout: opts.IdleTimeout,
		now:         now,
		log:         log,
	}

	for i := range s.queues {
		s.queues[i] = NewRequestQueue()
	}

	s.deadline = now().Add(opts.HandshakeTimeout)

	return s
}

func (s *Session) ID() uint32 {
	return s.id
}

func (s *Session) State() SessionState {
	return s.state
}

// Queue returns the queue holding requests of priority p.
func (s *Session) Queue(p protocol.Priority) *RequestQueue {
	return s.queues[p]
}

// Deadline returns the armed handshake or idle deadline, zero if none is armed.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Advance performs one protocol step. A non nil error is always a
// *DisconnectError and means the session must be destroyed.
func (s *Session) Advance() error {
	switch s.state {
	case Connecting:
		return s.handshake()

	case Active:
		if err := s.ingest(); err != nil {
			return err
		}

		return s.serve()

	default:
		return disconnect(ReasonServerClosed, ErrServerClosed)
	}
}

// Destroy closes the connection and releases the queues. It is safe to call
// more than once.
func (s *Session) Destroy() error {
	if s.state == Disconnected {
		return nil
	}

	s.state = Disconnected
	s.deadline = time.Time{}
	for _, q := range s.queues {
		q.Clear()
	}

	return s.stream.Close()
}

func (s *Session) handshake() error {
	if err := s.fill(); err != nil {
		return err
	}

	if s.pending == 0 {
		if s.expired() {
			return disconnect(ReasonHandshakeTimeout, ErrHandshakeTimeout)
		}

		return nil
	}

	op := s.inbound[0]
	s.consume(1)

	if op != protocol.HandshakeOpcode {
		return disconnect(ReasonHandshakeViolation, ErrHandshakeViolation)
	}

	if err := protocol.WriteHandshakeAck(s.stream); err != nil {
		return disconnect(ReasonTransportError, err)
	}

	if err := s.stream.Flush(); err != nil {
		return disconnect(ReasonTransportError, err)
	}

	s.state = Active
	s.deadline = time.Time{}

	s.log.Debug("Handshake complete")

	return nil
}

// ingest decodes every whole request frame that has arrived and queues it.
// A trailing partial frame stays buffered until the rest of it arrives.
func (s *Session) ingest() error {
	if err := s.fill(); err != nil {
		return err
	}

	reqs, used := protocol.ParseRequests(s.inbound[:s.pending])
	if used == 0 {
		return nil
	}

	s.consume(used)

	for _, req := range reqs {
		rec := RequestRecord{
			Index:   req.Index,
			Archive: req.Archive,
			// The wire size field is 16 bits wide
			Size: s.store.Length(req.Index, req.Archive) & protocol.MaxArchiveSize,
		}

		if !s.queues[req.Priority].Push(rec) {
			return disconnect(ReasonQueueOverfull, ErrQueueOverfull)
		}

		s.metrics.requestQueued(req.Priority)
	}

	return nil
}

// serve writes one chunk of the most urgent waiting request, or manages the
// idle deadline when nothing is waiting.
func (s *Session) serve() error {
	q := s.nextQueue()
	if q == nil {
		if s.deadline.IsZero() {
			s.deadline = s.now().Add(s.idleTimeout)
			return nil
		}

		if s.expired() {
			return disconnect(ReasonIdleTimeout, ErrIdleTimeout)
		}

		return nil
	}

	s.deadline = time.Time{}

	rec := q.Peek()
	chunk := &protocol.Chunk{
		Index:   rec.Index,
		Archive: rec.Archive,
		Size:    uint16(rec.Size),
		Block:   uint8(rec.Block),
	}

	if n := protocol.PayloadLength(rec.Size, rec.Block); n > 0 {
		data, _ := s.store.Get(rec.Index, rec.Archive)
		off := rec.Block * protocol.BlockSize
		chunk.Payload = data[off : off+n]
	}

	sent, err := protocol.WriteChunk(s.stream, chunk)
	if err != nil {
		return disconnect(ReasonTransportError, err)
	}

	if err := s.stream.Flush(); err != nil {
		return disconnect(ReasonTransportError, err)
	}

	s.metrics.chunkSent(sent)

	if rec.Block*protocol.BlockSize+sent >= rec.Size {
		q.Pop()
	} else {
		rec.Block++
	}

	return nil
}

func (s *Session) nextQueue() *RequestQueue {
	for _, p := range protocol.Priorities {
		if q := s.queues[p]; !q.IsEmpty() {
			return q
		}
	}

	return nil
}

// fill pulls whatever has already arrived on the stream into the inbound
// buffer.
func (s *Session) fill() error {
	n, err := s.stream.Poll(s.inbound[s.pending:])
	s.pending += n

	if err != nil {
		return disconnect(ReasonTransportError, err)
	}

	return nil
}

func (s *Session) consume(n int) {
	s.pending = copy(s.inbound[:], s.inbound[n:s.pending])
}

func (s *Session) expired() bool {
	return !s.deadline.IsZero() && s.now().After(s.deadline)
}
