package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/ondemand/internal/meta"
	"github.com/luma/ondemand/protocol"
	"github.com/luma/ondemand/storage"
	"github.com/luma/ondemand/transport"
)

type fixedStats transport.Stats

func (f fixedStats) Stats() transport.Stats {
	return transport.Stats(f)
}

var _ = Describe("admin", func() {
	var store *storage.InmemoryStore

	BeforeEach(func() {
		b := storage.NewBuilder()
		b.Put(0, 1, make([]byte, 1000))
		b.Put(2, 7, make([]byte, 24))
		store = b.Build()
	})

	Describe("statusDocument()", func() {
		It("reports sessions and archives", func() {
			doc, err := statusDocument(meta.Info{Version: "1.0.0"}, transport.Stats{Active: 3, Accepted: 12}, store)
			Expect(err).To(Succeed())

			Expect(gjson.Get(doc, "version").String()).To(Equal("1.0.0"))
			Expect(gjson.Get(doc, "sessions.active").Int()).To(Equal(int64(3)))
			Expect(gjson.Get(doc, "sessions.accepted").Int()).To(Equal(int64(12)))
			Expect(gjson.Get(doc, "archives.count").Int()).To(Equal(int64(2)))
			Expect(gjson.Get(doc, "archives.bytes").Int()).To(Equal(int64(1024)))
		})
	})

	Describe("printStatus()", func() {
		It("summarises a status document", func() {
			var out bytes.Buffer
			body := `{"version":"1.0.0","sessions":{"active":3,"accepted":12000},"archives":{"count":2,"bytes":1024}}`

			Expect(printStatus(&out, []byte(body))).To(Succeed())
			Expect(out.String()).To(Equal("version:  1.0.0\nsessions: 3 active, 12,000 accepted\narchives: 2, 1.0 kB\n"))
		})

		It("rejects documents that are not JSON", func() {
			Expect(printStatus(&bytes.Buffer{}, []byte("<html>"))).To(MatchError(ErrInvalidStatus))
		})
	})

	Describe("routes", func() {
		var router http.Handler

		BeforeEach(func() {
			reg := prometheus.NewRegistry()
			reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ondemand_test_total",
				Help: "A counter for the test",
			}))

			r := setupRouter(false, zap.NewNop())
			routeAdmin(r, fixedStats{Active: 1, Accepted: 1}, store, reg)
			router = r
		})

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, path, nil)
			router.ServeHTTP(w, req)
			return w
		}

		It("answers pings", func() {
			w := get("/ping")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("pong"))
		})

		It("serves the status document", func() {
			w := get("/status")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("application/json"))
			Expect(gjson.Get(w.Body.String(), "sessions.active").Int()).To(Equal(int64(1)))
		})

		It("exposes the registry", func() {
			w := get("/metrics")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("ondemand_test_total 0"))
		})
	})

	Describe("parsePriority()", func() {
		It("accepts every class by name", func() {
			for _, p := range protocol.Priorities {
				parsed, err := parsePriority(p.String())
				Expect(err).To(Succeed())
				Expect(parsed).To(Equal(p))
			}
		})

		It("rejects unknown names", func() {
			_, err := parsePriority("asap")
			Expect(err).To(HaveOccurred())
		})
	})
})
