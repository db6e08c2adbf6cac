package client

import (
	"net/http"
	"time"

	"github.com/bhoriuchi/graphql-go-client/auth"
	"github.com/bhoriuchi/graphql-go-client/cache"
	"github.com/bhoriuchi/graphql-go-client/link"
	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/metrics"
	"github.com/bhoriuchi/graphql-go-client/ws/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// FetchPolicy controls how queries use the cache
type FetchPolicy string

const (
	CacheFirst      FetchPolicy = "cache-first"
	CacheAndNetwork FetchPolicy = "cache-and-network"
	NetworkOnly     FetchPolicy = "network-only"
	NoCache         FetchPolicy = "no-cache"
	CacheOnly       FetchPolicy = "cache-only"
)

const defaultRefetchWorkers = 4

// Backend is the GraphQL backend and its identity provider
type Backend interface {
	Auth() auth.Provider
	GraphQLURL() string
}

type backend struct {
	url      string
	provider auth.Provider
}

func (b *backend) Auth() auth.Provider { return b.provider }
func (b *backend) GraphQLURL() string  { return b.url }

// NewBackend creates a Backend
func NewBackend(graphqlURL string, provider auth.Provider) Backend {
	return &backend{url: graphqlURL, provider: provider}
}

type Option func(opts *Options)

// Options configures the client
type Options struct {
	Backend Backend

	// GraphQLURL overrides the backend url and disables authentication
	GraphQLURL string
	Headers    Headers
	PublicRole string

	// SSRMode disables the subscription transport
	SSRMode bool
	OnError link.ErrorHandler
	Cache   *cache.Cache

	// FetchPolicy is the default for Query, WatchFetchPolicy for Watch
	FetchPolicy      FetchPolicy
	WatchFetchPolicy FetchPolicy

	// Protocol is the websocket subprotocol name
	Protocol       string
	Transport      *transport.Options
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	RefetchWorkers int

	LogFunc    logger.LogFunc
	Metrics    *metrics.Metrics
	Registerer prometheus.Registerer
}

func WithBackend(b Backend) Option {
	return func(opts *Options) {
		opts.Backend = b
	}
}

func WithGraphQLURL(url string) Option {
	return func(opts *Options) {
		opts.GraphQLURL = url
	}
}

func WithHeaders(h Headers) Option {
	return func(opts *Options) {
		opts.Headers = h
	}
}

func WithPublicRole(role string) Option {
	return func(opts *Options) {
		opts.PublicRole = role
	}
}

func WithSSRMode() Option {
	return func(opts *Options) {
		opts.SSRMode = true
	}
}

func WithOnError(h link.ErrorHandler) Option {
	return func(opts *Options) {
		opts.OnError = h
	}
}

func WithCache(c *cache.Cache) Option {
	return func(opts *Options) {
		opts.Cache = c
	}
}

func WithFetchPolicy(p FetchPolicy) Option {
	return func(opts *Options) {
		opts.FetchPolicy = p
	}
}

func WithWatchFetchPolicy(p FetchPolicy) Option {
	return func(opts *Options) {
		opts.WatchFetchPolicy = p
	}
}

func WithProtocol(name string) Option {
	return func(opts *Options) {
		opts.Protocol = name
	}
}

// WithTransportOptions sets the subscription transport options. Lazy,
// Reconnect, ConnectionParams, Protocol, LogFunc and Metrics are always set
// by the client.
func WithTransportOptions(o *transport.Options) Option {
	return func(opts *Options) {
		opts.Transport = o
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(opts *Options) {
		opts.HTTPClient = c
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.RequestTimeout = d
	}
}

func WithRefetchWorkers(n int) Option {
	return func(opts *Options) {
		opts.RefetchWorkers = n
	}
}

func WithLogFunc(f logger.LogFunc) Option {
	return func(opts *Options) {
		opts.LogFunc = f
	}
}

// WithMetrics registers the client metrics with reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(opts *Options) {
		opts.Registerer = reg
	}
}
