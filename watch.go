package client

import (
	"context"
	"sync"

	"github.com/bhoriuchi/graphql-go-client/link"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/pkg/errors"
)

const watchBufferSize = 4

// watch is an active query that is refetched after a store reset
type watch struct {
	id     string
	req    *Request
	policy FetchPolicy
	ctx    context.Context
	cancel context.CancelFunc

	mx      sync.Mutex
	closed  bool
	channel chan *link.Result
}

// send delivers a result unless the watch was closed. It never blocks, when
// the consumer has fallen behind the oldest buffered result is dropped so the
// channel always ends with the latest one.
func (w *watch) send(res *link.Result) bool {
	w.mx.Lock()
	defer w.mx.Unlock()

	if w.closed || w.ctx.Err() != nil {
		return false
	}

	for {
		select {
		case w.channel <- res:
			return true
		default:
		}

		select {
		case <-w.channel:
		default:
		}
	}
}

func (w *watch) close() {
	w.cancel()

	w.mx.Lock()
	defer w.mx.Unlock()
	if !w.closed {
		w.closed = true
		close(w.channel)
	}
}

// Watch runs a query and keeps delivering its result: the cached result
// first when the policy allows it, then the network result, then a new
// network result after every ResetStore. The channel is closed when ctx is
// cancelled or the client is closed.
func (c *Client) Watch(ctx context.Context, req *Request) (<-chan *link.Result, error) {
	policy := req.FetchPolicy
	if policy == "" {
		policy = c.opts.WatchFetchPolicy
	}
	if policy == "" {
		policy = CacheAndNetwork
	}

	switch policy {
	case CacheFirst, CacheAndNetwork, NetworkOnly, NoCache, CacheOnly:
	default:
		return nil, errors.Errorf("unknown fetch policy %q", policy)
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watch{
		id:      uuid.NewString(),
		req:     req,
		policy:  policy,
		ctx:     wctx,
		cancel:  cancel,
		channel: make(chan *link.Result, watchBufferSize),
	}

	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		cancel()
		return nil, ErrClosed
	}
	c.watches[w.id] = w
	c.mx.Unlock()

	go func() {
		<-w.ctx.Done()
		c.mx.Lock()
		delete(c.watches, w.id)
		c.mx.Unlock()
		w.close()
	}()

	go c.initialFetch(w)

	return w.channel, nil
}

func (c *Client) initialFetch(w *watch) {
	key, err := w.req.cacheKey()
	if err != nil {
		w.send(errorResult(err))
		return
	}

	switch w.policy {
	case CacheFirst, CacheAndNetwork, CacheOnly:
		if data, err := c.cache.Get(key); err == nil {
			w.send(&link.Result{Data: data})
			if w.policy != CacheAndNetwork {
				return
			}
		} else if w.policy == CacheOnly {
			w.send(errorResult(err))
			return
		}
	}

	c.networkFetch(w, key)
}

// networkFetch sends the request and delivers the result, failures are
// delivered as error results
func (c *Client) networkFetch(w *watch, key uint64) error {
	res, err := c.fetch(w.ctx, w.req)
	if err != nil {
		if w.ctx.Err() == nil {
			w.send(errorResult(err))
		}
		return err
	}

	if w.policy != NoCache && !res.HasErrors() {
		c.cache.Set(key, res.Data)
	}

	w.send(res)
	if res.HasErrors() {
		return &GraphQLError{Errors: res.Errors}
	}
	return nil
}

// refetchWatches refetches every watch that may use the network on a worker
// pool and returns the first failure
func (c *Client) refetchWatches(ctx context.Context) error {
	c.mx.Lock()
	watches := make([]*watch, 0, len(c.watches))
	for _, w := range c.watches {
		if w.policy != CacheOnly {
			watches = append(watches, w)
		}
	}
	c.mx.Unlock()

	if len(watches) == 0 {
		return nil
	}

	workers := c.opts.RefetchWorkers
	if workers <= 0 {
		workers = defaultRefetchWorkers
	}

	var (
		mx   sync.Mutex
		errs []error
	)

	wp := workerpool.New(workers)
	for _, w := range watches {
		w := w
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			key, err := w.req.cacheKey()
			if err == nil {
				err = c.networkFetch(w, key)
			}
			if err != nil {
				mx.Lock()
				errs = append(errs, err)
				mx.Unlock()
			}
		})
	}
	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) > 0 {
		c.log.WithError(errs[0]).Warnf("%d of %d watched queries failed to refetch", len(errs), len(watches))
		return errors.Wrapf(errs[0], "%d watched queries failed to refetch", len(errs))
	}
	return nil
}

func errorResult(err error) *link.Result {
	return &link.Result{Errors: gqlerrors.FormattedErrors{gqlerrors.FormatError(err)}}
}
