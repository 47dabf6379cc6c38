package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/luma/ondemand/protocol"
	"github.com/luma/ondemand/storage"
	"github.com/luma/ondemand/transport"
)

var _ = Describe("transport / TCP", func() {
	var (
		reg *prometheus.Registry
		tcp *transport.TCP
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
	})

	AfterEach(func() {
		if tcp != nil {
			Expect(tcp.Close()).To(Succeed())
			tcp = nil
		}
	})

	It("listens on the desired address", func() {
		tcp = makeTCPServer(reg, nil)

		conn, err := net.Dial("tcp", tcp.Addr().String())
		Expect(err).To(Succeed())
		conn.Close()
	})

	It("delivers a whole archive after the handshake", func() {
		tcp = makeTCPServer(reg, nil)
		conn := handshake(tcp)
		defer conn.Close()

		Expect(protocol.WriteRequest(conn, protocol.Request{Index: 0, Archive: 10, Priority: protocol.Normal})).To(Succeed())

		r := bufio.NewReader(conn)
		var chunks []*protocol.Chunk
		for i := 0; i < 3; i++ {
			chunk, err := protocol.ReadChunk(r)
			Expect(err).To(Succeed())
			chunks = append(chunks, chunk)
		}

		Expect(chunks[2].Block).To(Equal(uint8(2)))
		Expect(join(chunks)).To(Equal(pattern(1200)))
	})

	It("closes connections that open with the wrong byte", func() {
		tcp = makeTCPServer(reg, nil)
		conn := dial(tcp)
		defer conn.Close()

		_, err := conn.Write([]byte{0x05})
		Expect(err).To(Succeed())

		waitForClose(conn)

		Eventually(tcp.Stats).Should(Equal(transport.Stats{Active: 0, Accepted: 1}))
		Expect(testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP ondemand_transport_disconnects_total Total number of destroyed sessions by reason
# TYPE ondemand_transport_disconnects_total counter
ondemand_transport_disconnects_total{reason="handshake_violation"} 1
`), "ondemand_transport_disconnects_total")).To(Succeed())
	})

	It("closes idle connections", func() {
		tcp = makeTCPServer(reg, func(o *transport.Options) {
			o.IdleTimeout = 50 * time.Millisecond
		})
		conn := handshake(tcp)
		defer conn.Close()

		waitForClose(conn)
	})

	It("serves every client when only one session advances per tick", func() {
		tcp = makeTCPServer(reg, func(o *transport.Options) {
			o.MaxSessionsPerTick = 1
		})

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				conn := handshake(tcp)
				defer conn.Close()

				Expect(protocol.WriteRequest(conn, protocol.Request{Index: 2, Archive: 3, Priority: protocol.Passive})).To(Succeed())

				r := bufio.NewReader(conn)
				var chunks []*protocol.Chunk
				for j := 0; j < protocol.BlockCount(3000); j++ {
					chunk, err := protocol.ReadChunk(r)
					Expect(err).To(Succeed())
					chunks = append(chunks, chunk)
				}

				Expect(join(chunks)).To(Equal(pattern(3000)))
			}()
		}

		wg.Wait()
		Expect(tcp.Stats().Accepted).To(Equal(uint64(4)))
	})

	It("disconnects every client when closed", func() {
		tcp = makeTCPServer(reg, nil)
		conn := handshake(tcp)
		defer conn.Close()

		Eventually(tcp.Stats).Should(Equal(transport.Stats{Active: 1, Accepted: 1}))

		Expect(tcp.Close()).To(Succeed())
		tcp = nil

		waitForClose(conn)
	})

	Describe("Tick()", func() {
		It("fails before Listen", func() {
			idle := transport.NewTCP(transport.Options{Store: storage.NewBuilder().Build()})
			Expect(idle.Tick()).To(MatchError(transport.ErrNotListening))
		})

		It("accepts at most one connection per tick", func() {
			manual := transport.NewTCP(transport.Options{
				Host:  "127.0.0.1",
				Store: testStore(),
			})
			Expect(manual.Listen()).To(Succeed())
			defer func() {
				Expect(manual.Close()).To(Succeed())
			}()

			a := dial(manual)
			defer a.Close()
			b := dial(manual)
			defer b.Close()

			Eventually(func() uint64 {
				Expect(manual.Tick()).To(Succeed())
				return manual.Stats().Accepted
			}).Should(Equal(uint64(1)))

			Expect(manual.Tick()).To(Succeed())
			Expect(manual.Stats().Accepted).To(Equal(uint64(2)))
		})

		Describe("session advances", func() {
			var manual *transport.TCP

			BeforeEach(func() {
				manual = transport.NewTCP(transport.Options{
					Host:  "127.0.0.1",
					Store: testStore(),
				})
				Expect(manual.Listen()).To(Succeed())
			})

			AfterEach(func() {
				Expect(manual.Close()).To(Succeed())
			})

			// connect accepts n sessions, one per tick
			connect := func(n int) []net.Conn {
				conns := make([]net.Conn, n)
				for i := range conns {
					conns[i] = dial(manual)

					Eventually(func() uint64 {
						Expect(manual.Tick()).To(Succeed())
						return manual.Stats().Accepted
					}).Should(Equal(uint64(i + 1)))
				}

				return conns
			}

			It("advances at most MaxSessionsPerTick sessions in one tick", func() {
				conns := connect(12)
				defer closeAll(conns)

				for _, conn := range conns {
					Expect(protocol.WriteHandshake(conn)).To(Succeed())
				}

				// Let every handshake byte reach the server before the tick
				time.Sleep(100 * time.Millisecond)
				Expect(manual.Tick()).To(Succeed())

				acked := 0
				for _, conn := range conns {
					switch got := len(readAvailable(conn)); got {
					case 0:
					case protocol.HandshakeAckSize:
						acked++
					default:
						Fail(fmt.Sprintf("received %d bytes, expected nothing or one ack", got))
					}
				}
				Expect(acked).To(Equal(transport.DefaultMaxSessionsPerTick))

				Expect(manual.Tick()).To(Succeed())

				for _, conn := range conns {
					got := len(readAvailable(conn))
					Expect(got == 0 || got == protocol.HandshakeAckSize).To(BeTrue())
					acked += got / protocol.HandshakeAckSize
				}
				Expect(acked).To(Equal(12))
			})

			It("advances each session only once per tick", func() {
				conns := connect(3)
				defer closeAll(conns)

				// The request right behind the handshake needs a second advance
				for _, conn := range conns {
					frame := protocol.AppendRequest([]byte{protocol.HandshakeOpcode},
						protocol.Request{Index: 0, Archive: 10, Priority: protocol.Urgent})
					_, err := conn.Write(frame)
					Expect(err).To(Succeed())
				}

				time.Sleep(100 * time.Millisecond)
				Expect(manual.Tick()).To(Succeed())

				for _, conn := range conns {
					Expect(readAvailable(conn)).To(Equal(make([]byte, protocol.HandshakeAckSize)))
				}

				Expect(manual.Tick()).To(Succeed())

				for _, conn := range conns {
					data := readAvailable(conn)
					Expect(data).To(HaveLen(protocol.ChunkHeaderSize + protocol.BlockSize))

					chunk, err := protocol.ReadChunk(bytes.NewReader(data))
					Expect(err).To(Succeed())
					Expect(chunk.Block).To(BeZero())
				}
			})
		})
	})
})

func testStore() storage.Store {
	b := storage.NewBuilder()
	b.Put(0, 10, pattern(1200))
	b.Put(2, 3, pattern(3000))
	return b.Build()
}

func makeTCPServer(reg prometheus.Registerer, configure func(*transport.Options)) *transport.TCP {
	log, err := zap.NewDevelopment()
	Expect(err).To(Succeed())

	opts := transport.Options{
		Host:       "127.0.0.1",
		Store:      testStore(),
		Registerer: reg,
		Log:        log,
	}

	if configure != nil {
		configure(&opts)
	}

	tcp := transport.NewTCP(opts)
	Expect(tcp.Start(context.Background())).To(Succeed())

	return tcp
}

func dial(tcp *transport.TCP) net.Conn {
	conn, err := net.Dial("tcp", tcp.Addr().String())
	Expect(err).To(Succeed())
	Expect(conn.SetDeadline(time.Now().Add(10 * time.Second))).To(Succeed())

	return conn
}

func handshake(tcp *transport.TCP) net.Conn {
	conn := dial(tcp)
	Expect(protocol.WriteHandshake(conn)).To(Succeed())
	Expect(protocol.ReadHandshakeAck(conn)).To(Succeed())

	return conn
}

func waitForClose(conn net.Conn) {
	// Any read error other than our own deadline means the server hung up
	Expect(conn.SetReadDeadline(time.Now().Add(10 * time.Second))).To(Succeed())

	one := make([]byte, 1)
	_, err := conn.Read(one)
	Expect(err).To(HaveOccurred())
	Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeFalse(), "the client was never closed by the server")
}

// readAvailable returns whatever the server has sent within a short wait.
func readAvailable(conn net.Conn) []byte {
	var data []byte
	buf := make([]byte, 4096)

	for {
		Expect(conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))).To(Succeed())

		n, err := conn.Read(buf)
		data = append(data, buf[:n]...)

		if err != nil {
			Expect(errors.Is(err, os.ErrDeadlineExceeded)).To(BeTrue(), "unexpected read error: %v", err)
			return data
		}
	}
}

func closeAll(conns []net.Conn) {
	for _, conn := range conns {
		conn.Close()
	}
}
