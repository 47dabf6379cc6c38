package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/ondemand/storage"
)

var ErrNotListening = errors.New("Server is not listening")

// transientAcceptErrors fail a single accept without saying anything about
// the listener itself.
var transientAcceptErrors = []error{
	syscall.ECONNABORTED,
	syscall.ECONNRESET,
	syscall.EMFILE,
	syscall.ENFILE,
	syscall.ENOBUFS,
	syscall.ENOMEM,
}

type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Stats is a snapshot of the server's session counters. It may be read from
// any goroutine.
type Stats struct {
	Active   int64
	Accepted uint64
}

// TCP is the on-demand server. A single dispatch loop accepts connections
// and advances every session in round-robin order; sessions are never touched
// by any other goroutine.
type TCP struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	addr string
	opts Options

	mu       sync.Mutex
	listener deadlineListener

	// ready is owned by the dispatch loop
	ready  []*Session
	nextID uint32

	accepted atomic.Uint64
	active   atomic.Int64

	store   storage.Store
	metrics *metrics
	log     *zap.Logger
}

func NewTCP(options Options) *TCP {
	options.applyDefaults()

	return &TCP{
		addr:    net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
		opts:    options,
		store:   options.Store,
		metrics: newMetrics(options.Registerer),
		log:     options.Log,
	}
}

func (t *TCP) Store() storage.Store {
	return t.store
}

// Listen binds the server's address. It must be called before Tick or Serve.
func (t *TCP) Listen() error {
	var (
		ln  net.Listener
		err error
	)

	if t.opts.Reuseport {
		ln, err = reuseport.Listen("tcp", t.addr)
	} else {
		ln, err = net.Listen("tcp", t.addr)
	}

	if err != nil {
		return err
	}

	dl, ok := ln.(deadlineListener)
	if !ok {
		return multierr.Append(ErrListenerDeadline, ln.Close())
	}

	t.mu.Lock()
	t.listener = dl
	t.mu.Unlock()

	t.log.Info("Listening", zap.String("addr", dl.Addr().String()))

	return nil
}

// Addr returns the bound address, nil before Listen.
func (t *TCP) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener == nil {
		return nil
	}

	return t.listener.Addr()
}

// Start listens and runs the dispatch loop in a goroutine until ctx is
// cancelled or Close is called.
func (t *TCP) Start(parentCtx context.Context) error {
	if err := t.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		if err := t.Serve(ctx); err != nil {
			t.log.Error("Dispatch loop stopped", zap.Error(err))
			t.err = err
		}
	}()

	return nil
}

// Done is closed once a loop started by Start has exited.
func (t *TCP) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that stopped a loop started by Start. It is only
// meaningful after Done is closed.
func (t *TCP) Err() error {
	return t.err
}

// Serve runs the dispatch loop on the calling goroutine. It returns nil when
// ctx is cancelled and an error if the listener fails. Every session is
// destroyed before it returns.
func (t *TCP) Serve(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, t.shutdown())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		default:
			if err := t.Tick(); err != nil {
				return err
			}
		}
	}
}

// Tick runs one iteration of the dispatch loop: one bounded accept attempt
// followed by at most MaxSessionsPerTick session advances. Every live
// session is advanced at most once per tick.
func (t *TCP) Tick() error {
	start := time.Now()
	defer func() {
		t.metrics.tick(time.Since(start))
	}()

	conn, err := t.accept()
	if err != nil {
		return err
	}

	if conn != nil {
		t.addSession(conn)
	}

	n := len(t.ready)
	if n > t.opts.MaxSessionsPerTick {
		n = t.opts.MaxSessionsPerTick
	}

	for i := 0; i < n; i++ {
		s := t.ready[0]
		t.ready[0] = nil
		t.ready = t.ready[1:]

		if err := s.Advance(); err != nil {
			t.destroy(s, err)
			continue
		}

		t.ready = append(t.ready, s)
	}

	return nil
}

// Stats returns the current session counters.
func (t *TCP) Stats() Stats {
	return Stats{
		Active:   t.active.Load(),
		Accepted: t.accepted.Load(),
	}
}

// Close stops a loop started by Start and waits for it to exit. Without a
// running loop it destroys every session and closes the listener directly.
func (t *TCP) Close() error {
	if t.cancel != nil {
		t.log.Info("Stopping TCP server")
		t.cancel()
		<-t.done

		return nil
	}

	return t.shutdown()
}

func (t *TCP) accept() (net.Conn, error) {
	t.mu.Lock()
	ln := t.listener
	t.mu.Unlock()

	if ln == nil {
		return nil, ErrNotListening
	}

	if err := ln.SetDeadline(time.Now().Add(t.opts.AcceptWait)); err != nil {
		return nil, err
	}

	conn, err := ln.Accept()
	if err != nil {
		var netErr net.Error
		if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, nil
		}

		if isTransientAcceptError(err) {
			t.log.Warn("Failed to accept a connection", zap.Error(err))
			return nil, nil
		}

		return nil, err
	}

	return conn, nil
}

func isTransientAcceptError(err error) bool {
	for _, target := range transientAcceptErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func (t *TCP) addSession(conn net.Conn) {
	t.nextID++

	stream := NewConnStream(conn, t.opts.WriteTimeout)
	log := t.log.Named("session").With(
		zap.Uint32("session", t.nextID),
		zap.String("remote", stream.RemoteAddr()))

	s := NewSession(t.nextID, stream, t.store, SessionOptions{
		HandshakeTimeout: t.opts.HandshakeTimeout,
		IdleTimeout:      t.opts.IdleTimeout,
		Log:              log,
	})
	s.metrics = t.metrics

	t.ready = append(t.ready, s)
	t.accepted.Add(1)
	t.active.Add(1)
	t.metrics.sessionAccepted()

	log.Debug("Client connected")
}

func (t *TCP) destroy(s *Session, cause error) {
	reason := ReasonOf(cause)

	if err := s.Destroy(); err != nil {
		s.log.Debug("Connection did not close cleanly", zap.Error(err))
	}

	t.active.Add(-1)
	t.metrics.sessionDestroyed(reason)

	if reason == ReasonServerClosed {
		s.log.Debug("Client disconnected", zap.String("reason", reason.String()))
		return
	}

	s.log.Warn("Client disconnected",
		zap.String("reason", reason.String()),
		zap.Error(cause))
}

// shutdown destroys every session and closes the listener.
func (t *TCP) shutdown() error {
	for _, s := range t.ready {
		t.destroy(s, disconnect(ReasonServerClosed, ErrServerClosed))
	}
	t.ready = nil

	t.mu.Lock()
	ln := t.listener
	t.listener = nil
	t.mu.Unlock()

	if ln == nil {
		return nil
	}

	t.log.Info("Listener stopped")

	return ln.Close()
}
