package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luma/ondemand/storage"
)

const (
	// BasePort is added to the configured port offset to get the listen port.
	BasePort = 43594

	DefaultAcceptWait         = 5 * time.Millisecond
	DefaultHandshakeTimeout   = 5 * time.Second
	DefaultIdleTimeout        = 5 * time.Second
	DefaultWriteTimeout       = 500 * time.Millisecond
	DefaultMaxSessionsPerTick = 10
)

type Options struct {
	// Host to listen on
	Host string

	// Port to listen on, usually BasePort plus an offset
	Port int

	// Reuseport controls setting SO_REUSEPORT
	Reuseport bool

	// AcceptWait bounds how long a tick waits for a new connection
	AcceptWait time.Duration

	// MaxSessionsPerTick bounds how many sessions are advanced per tick
	MaxSessionsPerTick int

	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration

	Store storage.Store

	// Registerer receives the server's metrics, a private registry if nil
	Registerer prometheus.Registerer

	Log *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.AcceptWait <= 0 {
		o.AcceptWait = DefaultAcceptWait
	}

	if o.MaxSessionsPerTick <= 0 {
		o.MaxSessionsPerTick = DefaultMaxSessionsPerTick
	}

	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}

	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}
}
