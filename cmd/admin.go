package cmd

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/ondemand/internal/meta"
	"github.com/luma/ondemand/transport"
)

// archiveStats is what the status document reports about the loaded store.
type archiveStats interface {
	Count() int
	Size() int64
}

type statsSource interface {
	Stats() transport.Stats
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs every request except health checks, RFC3339 in UTC
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func routeAdmin(r *gin.Engine, server statsSource, archives archiveStats, gatherer prometheus.Gatherer) {
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/status", func(c *gin.Context) {
		doc, err := statusDocument(meta.GetInfo(), server.Stats(), archives)
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

func statusDocument(info meta.Info, stats transport.Stats, archives archiveStats) (string, error) {
	fields := []struct {
		path  string
		value interface{}
	}{
		{"version", info.Version},
		{"build", info.Build},
		{"sessions.active", stats.Active},
		{"sessions.accepted", stats.Accepted},
		{"archives.count", archives.Count()},
		{"archives.bytes", archives.Size()},
	}

	var (
		doc = "{}"
		err error
	)

	for _, f := range fields {
		if doc, err = sjson.Set(doc, f.path, f.value); err != nil {
			return "", err
		}
	}

	return doc, nil
}
