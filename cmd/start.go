package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ondemand/internal/env"
	"github.com/luma/ondemand/transport"
)

var StartCmd = &cobra.Command{
	Use:   "start [properties]",
	Short: "Preload the manifest's archives and serve them",
	Long: `Preload the manifest's archives and serve them

Usage
	ondemand start server.properties

The properties file names the cache, the manifest written by setup and the
port offset. Clients connect on 43594 plus PORTOFF.
`,
	Args: cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		catalog, err := env.LoadCatalog(catalogPath(args), env.ServeMode)
		if err != nil {
			return err
		}

		store, err := loadStore(ctx, catalog, log)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		tcp := transport.NewTCP(transport.Options{
			Host:         conf.Host,
			Port:         transport.BasePort + catalog.PortOffset,
			Reuseport:    conf.Reuseport,
			WriteTimeout: conf.WriteTimeout,
			Store:        store,
			Registerer:   reg,
			Log:          log.Named("dispatcher"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		var s *http.Server
		if conf.HTTPAddr != "" {
			router := setupRouter(conf.DebugHTTP, log.Named("http"))
			routeAdmin(router, tcp, store, reg)

			s = &http.Server{
				Addr:    conf.HTTPAddr,
				Handler: router,
			}

			// Initializing the server in a goroutine so that
			// it won't block the graceful shutdown handling below
			go func() {
				if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("Http server errored", zap.Error(err))
				}
			}()
		}

		log.Info("Started",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.String("httpAddr", conf.HTTPAddr))

		select {
		case <-ctx.Done():
		case <-tcp.Done():
			err = tcp.Err()
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		if s != nil {
			// The http server has 5 seconds to finish the requests it is handling
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s.SetKeepAlivesEnabled(false)

			if err := s.Shutdown(shutdownCtx); err != nil {
				log.Error("Http server forced to shutdown", zap.Error(err))
			}
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return err
	},
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
