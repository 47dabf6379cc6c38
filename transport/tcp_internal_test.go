package transport

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/ondemand/storage"
)

// failingListener fails every Accept with err.
type failingListener struct {
	err    error
	closed bool
}

func (l *failingListener) Accept() (net.Conn, error) {
	return nil, &net.OpError{Op: "accept", Net: "tcp", Err: l.err}
}

func (l *failingListener) Close() error {
	l.closed = true
	return nil
}

func (l *failingListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func (l *failingListener) SetDeadline(time.Time) error {
	return nil
}

var _ = Describe("transport / TCP accept errors", func() {
	serverWith := func(err error) (*TCP, *failingListener) {
		ln := &failingListener{err: err}
		tcp := NewTCP(Options{Store: storage.NewBuilder().Build()})
		tcp.listener = ln

		return tcp, ln
	}

	It("keeps serving through errors that only fail one accept", func() {
		for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ECONNABORTED} {
			tcp, ln := serverWith(os.NewSyscallError("accept", errno))

			Expect(tcp.Tick()).To(Succeed())
			Expect(tcp.Tick()).To(Succeed())
			Expect(tcp.Stats().Accepted).To(BeZero())

			Expect(tcp.Close()).To(Succeed())
			Expect(ln.closed).To(BeTrue())
		}
	})

	It("stops on any other accept error", func() {
		broken := errors.New("listener is broken")
		tcp, _ := serverWith(broken)

		Expect(tcp.Tick()).To(MatchError(broken))
		Expect(tcp.Close()).To(Succeed())
	})
})

var _ = Describe("transport / Options defaults", func() {
	It("bounds each flush well below a second", func() {
		tcp := NewTCP(Options{Store: storage.NewBuilder().Build()})

		Expect(tcp.opts.WriteTimeout).To(Equal(500 * time.Millisecond))
		Expect(tcp.opts.AcceptWait).To(Equal(5 * time.Millisecond))
		Expect(tcp.opts.MaxSessionsPerTick).To(Equal(10))
	})

	It("keeps an explicit write timeout", func() {
		tcp := NewTCP(Options{WriteTimeout: 2 * time.Second, Store: storage.NewBuilder().Build()})
		Expect(tcp.opts.WriteTimeout).To(Equal(2 * time.Second))
	})
})
