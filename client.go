// Package client builds an authenticated GraphQL client. Queries and
// mutations are sent over http, subscriptions over a lazily opened websocket
// and both carry headers derived from the identity provider.
package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/bhoriuchi/graphql-go-client/auth"
	"github.com/bhoriuchi/graphql-go-client/cache"
	"github.com/bhoriuchi/graphql-go-client/gqlclient"
	"github.com/bhoriuchi/graphql-go-client/link"
	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/metrics"
	"github.com/bhoriuchi/graphql-go-client/ws/transport"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/pkg/errors"
)

var (
	// ErrNoGraphQLURL is returned when neither a url nor a backend is set
	ErrNoGraphQLURL = errors.New("no GraphQL URL")

	// ErrClosed is returned by operations on a closed client
	ErrClosed = errors.New("client is closed")
)

// GraphQLError is returned when a result contains GraphQL errors
type GraphQLError struct {
	Errors gqlerrors.FormattedErrors
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Request is an operation sent through the client
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Extensions    map[string]interface{}

	// Headers are sent with http operations only
	Headers     Headers
	FetchPolicy FetchPolicy
}

func (r *Request) operation() *link.Operation {
	op := link.NewOperation(r.Query, r.OperationName, r.Variables)
	op.Extensions = r.Extensions
	for k, v := range r.Headers {
		op.SetHeader(k, v)
	}
	return op
}

func (r *Request) cacheKey() (uint64, error) {
	return cache.Key(r.Query, r.OperationName, r.Variables)
}

// Client is an authenticated GraphQL client
type Client struct {
	opts        Options
	url         string
	wsURL       string
	explicitURL bool
	provider    auth.Provider
	log         *logger.LogWrapper
	metrics     *metrics.Metrics

	http      *gqlclient.Client
	ws        *transport.Client
	link      link.Link
	cache     *cache.Cache
	ownsCache bool

	mx      sync.Mutex
	watches map[string]*watch
	unbind  []func()
	closed  bool
	resets  sync.WaitGroup
}

// Generate builds the client. An explicit GraphQLURL takes precedence over
// the backend url and disables authentication headers.
func Generate(opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}

	c := &Client{
		opts:    *opts,
		log:     logger.NewLogWrapper(opts.LogFunc, nil).WithField("component", "graphql-client"),
		metrics: opts.Metrics,
		watches: map[string]*watch{},
	}

	switch {
	case opts.GraphQLURL != "":
		c.url = opts.GraphQLURL
		c.explicitURL = true
	case opts.Backend != nil:
		c.url = opts.Backend.GraphQLURL()
		c.provider = opts.Backend.Auth()
	}
	if c.url == "" {
		return nil, ErrNoGraphQLURL
	}
	c.wsURL = WebSocketURL(c.url)

	if c.metrics == nil && opts.Registerer != nil {
		c.metrics = metrics.New()
		if err := c.metrics.Register(opts.Registerer); err != nil {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
	}

	var err error
	c.http, err = gqlclient.NewClient(&gqlclient.Options{
		URL:            c.url,
		HTTPClient:     opts.HTTPClient,
		RequestTimeout: opts.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	if !opts.SSRMode {
		if c.ws, err = c.newTransport(); err != nil {
			return nil, err
		}
	}

	c.link = c.buildLink()

	c.cache = opts.Cache
	if c.cache == nil {
		if c.cache, err = cache.New(&cache.Options{Metrics: c.metrics}); err != nil {
			return nil, errors.Wrap(err, "failed to create cache")
		}
		c.ownsCache = true
	}

	c.log.WithField("url", c.url).Debugf("client generated")
	return c, nil
}

func (c *Client) newTransport() (*transport.Client, error) {
	to := transport.Options{}
	if c.opts.Transport != nil {
		to = *c.opts.Transport
	}

	if c.opts.Protocol != "" {
		p, ok := transport.ProtocolByName(c.opts.Protocol)
		if !ok {
			return nil, errors.Errorf("unsupported websocket protocol %q", c.opts.Protocol)
		}
		to.Protocol = p
	}

	to.Lazy = true
	to.Reconnect = true
	to.LogFunc = c.opts.LogFunc
	to.Metrics = c.metrics
	to.ConnectionParams = func() map[string]interface{} {
		return map[string]interface{}{
			"headers": c.headers(),
		}
	}
	if to.OnError == nil {
		to.OnError = func(err error) {
			c.log.WithError(err).Warnf("subscription transport error")
		}
	}

	return transport.New(c.wsURL, &to), nil
}

// buildLink routes subscriptions to the websocket and everything else to
// the authenticated http link
func (c *Client) buildLink() link.Link {
	authLink := link.SetContext(func(ctx context.Context, op *link.Operation) (map[string]string, error) {
		return c.headers(), nil
	})
	httpLink := link.Concat(authLink, link.NewHTTPLink(c.http))

	l := httpLink
	if c.ws != nil {
		l = link.Split(link.IsSubscription, link.NewWebSocketLink(c.ws), httpLink)
	}

	if c.opts.OnError != nil {
		l = link.From(link.OnError(c.opts.OnError), l)
	}

	return link.From(c.instrument(), l)
}

// instrument counts operations and failures per transport
func (c *Client) instrument() link.Link {
	return link.Func(func(ctx context.Context, op *link.Operation, forward link.NextLink) (<-chan *link.Result, error) {
		kind := op.Kind()
		tr := metrics.TransportHTTP
		if c.ws != nil && kind == "subscription" {
			tr = metrics.TransportWS
		}
		c.metrics.IncOperation(tr, kind)

		ch, err := forward(ctx, op)
		if err != nil {
			c.metrics.IncOperationError(tr)
		}
		return ch, err
	})
}

func (c *Client) headers() Headers {
	return AuthHeaders(c.provider, c.opts.PublicRole, c.opts.Headers, c.explicitURL)
}

// URL returns the http url
func (c *Client) URL() string {
	return c.url
}

// WebSocketURL returns the subscription url
func (c *Client) WebSocketURL() string {
	return c.wsURL
}

// WebSocket returns the subscription transport, nil in SSR mode
func (c *Client) WebSocket() *transport.Client {
	return c.ws
}

// Link returns the request pipeline
func (c *Client) Link() link.Link {
	return c.link
}

// Cache returns the result cache
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

func (c *Client) isClosed() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.closed
}

// execute sends a request through the link
func (c *Client) execute(ctx context.Context, req *Request) (<-chan *link.Result, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	return link.Execute(ctx, c.link, req.operation())
}

// fetch executes a request and waits for its single result
func (c *Client) fetch(ctx context.Context, req *Request) (*link.Result, error) {
	ch, err := c.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return link.First(ctx, ch)
}

// Query runs a query honouring the fetch policy and decodes the data into
// out when it is not nil. cache-and-network behaves like cache-first for a
// single result, use Watch to receive both.
func (c *Client) Query(ctx context.Context, req *Request, out interface{}) (*link.Result, error) {
	policy := req.FetchPolicy
	if policy == "" {
		policy = c.opts.FetchPolicy
	}
	if policy == "" {
		policy = CacheFirst
	}

	key, err := req.cacheKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute cache key")
	}

	switch policy {
	case CacheFirst, CacheAndNetwork, CacheOnly:
		data, err := c.cache.Get(key)
		if err == nil {
			res := &link.Result{Data: data}
			return res, decode(res, out)
		}
		if policy == CacheOnly {
			return nil, err
		}
	case NetworkOnly, NoCache:
	default:
		return nil, errors.Errorf("unknown fetch policy %q", policy)
	}

	res, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if policy != NoCache && !res.HasErrors() {
		c.cache.Set(key, res.Data)
	}

	return res, decode(res, out)
}

// Mutate runs a mutation, results are never cached
func (c *Client) Mutate(ctx context.Context, req *Request, out interface{}) (*link.Result, error) {
	res, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	return res, decode(res, out)
}

// Subscribe starts a subscription. The channel is closed when the
// subscription completes or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, req *Request) (<-chan *link.Result, error) {
	return c.execute(ctx, req)
}

// ClearStore removes every cached result without refetching
func (c *Client) ClearStore() {
	c.cache.Reset()
}

// ResetStore clears the cache and refetches every active watch
func (c *Client) ResetStore(ctx context.Context) error {
	c.mx.Lock()
	closed := c.closed
	c.mx.Unlock()
	if closed {
		return ErrClosed
	}


	c.cache.Reset()
	c.log.Debugf("store reset")
	return c.refetchWatches(ctx)
}

// Close unbinds the identity provider listeners, ends every watch and closes
// the subscription transport
func (c *Client) Close() error {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		return nil
	}
	c.closed = true
	unbind := c.unbind
	c.unbind = nil
	watches := make([]*watch, 0, len(c.watches))
	for _, w := range c.watches {
		watches = append(watches, w)
	}
	c.watches = map[string]*watch{}
	c.mx.Unlock()

	for _, fn := range unbind {
		fn()
	}

	for _, w := range watches {
		w.close()
	}

	var err error
	if c.ws != nil {
		err = c.ws.Close()
	}

	// resets started by a sign out still use the cache
	c.resets.Wait()

	if c.ownsCache {
		c.cache.Close()
	}

	return err
}

func decode(res *link.Result, out interface{}) error {
	if res.HasErrors() {
		return &GraphQLError{Errors: res.Errors}
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(res.Data, out), "failed to decode result")
}
