package transport

import (
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/metrics"
	"github.com/bhoriuchi/graphql-go-client/utils/backoff"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols/graphqltransportws"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols/graphqlws"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// ConnectionParamsFunc returns the connection_init payload, it is called
// every time a connection is established
type ConnectionParamsFunc func() map[string]interface{}

// Options configures a subscription transport
type Options struct {
	// Lazy defers connecting until the first subscription
	Lazy bool

	// Reconnect enables automatic and explicit reconnects
	Reconnect bool

	// ReconnectionAttempts limits consecutive reconnects, 0 is unlimited
	ReconnectionAttempts int

	ConnectionParams ConnectionParamsFunc
	Protocol         protocols.Protocol
	Dialer           *websocket.Dialer
	Header           http.Header

	// AckTimeout drops a connection that is not acknowledged in time
	AckTimeout time.Duration

	// KeepAliveTimeout drops a connection that receives no keep-alive or
	// ping within the duration
	KeepAliveTimeout time.Duration

	// InactivityTimeout closes a lazy connection once it has had no
	// operations for the duration
	InactivityTimeout time.Duration

	Backoff *backoff.Options
	LogFunc logger.LogFunc
	Metrics *metrics.Metrics

	OnConnected    func()
	OnReconnected  func()
	OnDisconnected func(err error)
	OnError        func(err error)
}

// ProtocolByName returns the protocol for a subprotocol name
func ProtocolByName(name string) (protocols.Protocol, bool) {
	switch name {
	case graphqlws.Subprotocol:
		return graphqlws.New(), true
	case graphqltransportws.Subprotocol:
		return graphqltransportws.New(), true
	}
	return nil, false
}

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}

	if opts.Protocol == nil {
		opts.Protocol = graphqlws.New()
	}

	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}

	if opts.LogFunc == nil {
		opts.LogFunc = logger.NoopLogFunc
	}

	if opts.Backoff == nil {
		opts.Backoff = &backoff.Options{Jitter: 0.5}
	}

	return opts
}
