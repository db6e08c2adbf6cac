// Package transport is a GraphQL over websocket subscription client. It keeps
// a single lazily opened connection, multiplexes operations over it and
// resends them after a reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/utils/backoff"
	"github.com/bhoriuchi/graphql-go-client/utils/interval"
	"github.com/bhoriuchi/graphql-go-client/ws/manager"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Status mirrors the websocket ready state
type Status int32

const (
	StatusConnecting Status = 0
	StatusOpen       Status = 1
	StatusClosing    Status = 2
	StatusClosed     Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	}
	return "closed"
}

// ErrClosed is returned when the transport is closed while connecting
var ErrClosed = errors.New("subscription transport is closed")

// retryDecider is implemented by protocols that reject some close codes
type retryDecider interface {
	ShouldRetry(code int) bool
}

// Client is a subscription transport client
type Client struct {
	url      string
	opts     Options
	protocol protocols.Protocol
	log      *logger.LogWrapper
	mgr      *manager.Manager
	backoff  *backoff.Backoff

	mx              sync.Mutex
	conn            *connection
	status          Status
	closedByUser    bool
	everConnected   bool
	generation      int
	reconnectTimer  *interval.Interval
	inactivityTimer *interval.Interval
}

// New creates a subscription transport for url. Unless opts.Lazy is set
// the connection is opened immediately in the background.
func New(url string, opts *Options) *Client {
	o := opts.withDefaults()

	c := &Client{
		url:      url,
		opts:     o,
		protocol: o.Protocol,
		mgr:      manager.NewManager(),
		backoff:  backoff.NewBackoff(o.Backoff),
		status:   StatusClosed,
		log: logger.NewLogWrapper(o.LogFunc, nil).
			WithField("url", url).
			WithField("subprotocol", o.Protocol.Subprotocol()),
	}

	if !o.Lazy {
		go c.connect(context.Background())
	}

	return c
}

// URL returns the websocket url
func (c *Client) URL() string {
	return c.url
}

// Status returns the connection status
func (c *Client) Status() Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}

// SubscriptionCount returns the number of active operations
func (c *Client) SubscriptionCount() int {
	return c.mgr.SubscriptionCount()
}

// Connect opens the connection if it is not already open or opening
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx)
}

// Subscribe starts an operation. Results are delivered on the returned
// channel, which is closed when the server completes the operation, the
// operation fails, ctx is cancelled or the transport is closed.
func (c *Client) Subscribe(ctx context.Context, payload *protocols.Payload) (<-chan *protocols.ExecutionResult, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	op := manager.NewOperation(ctx, uuid.NewString(), payload)
	if err := c.mgr.Subscribe(op); err != nil {
		op.Close()
		return nil, err
	}
	c.opts.Metrics.SetActiveSubscriptions(c.mgr.SubscriptionCount())

	log := c.log.WithField("operationId", op.ID)
	log.Debugf("subscription %q SUBSCRIBED", op.OperationName)

	c.mx.Lock()
	interval.ClearTimeout(c.inactivityTimer)
	c.inactivityTimer = nil
	conn := c.conn
	pending := c.reconnectTimer != nil && !c.reconnectTimer.Cleared()
	c.mx.Unlock()

	switch {
	case conn != nil:
		c.start(conn, op)
	case !pending:
		go func() {
			if err := c.connect(context.Background()); err != nil {
				log.WithError(err).Warnf("failed to connect for subscription %q", op.OperationName)
			}
		}()
	}

	go func() {
		<-op.Context.Done()
		c.stop(op.ID)
	}()

	return op.C(), nil
}

// start sends the start message once the connection is acknowledged
func (c *Client) start(conn *connection, op *manager.Operation) {
	if !conn.markStarted(op.ID) {
		return
	}
	if err := conn.send(c.protocol.StartMessage(op.ID, op.Payload)); err != nil {
		conn.markStopped(op.ID)
	}
}

// stop removes an operation and tells the server to stop it
func (c *Client) stop(id string) {
	op := c.mgr.Unsubscribe(id)
	if op == nil {
		return
	}
	c.opts.Metrics.SetActiveSubscriptions(c.mgr.SubscriptionCount())
	c.log.WithField("operationId", id).Debugf("subscription %q UNSUBSCRIBED", op.OperationName)

	c.mx.Lock()
	conn := c.conn
	c.mx.Unlock()

	if conn != nil && conn.markStopped(id) {
		conn.send(c.protocol.StopMessage(id))
	}

	c.setInactivityTimeout()
}

func (c *Client) setInactivityTimeout() {
	if !c.opts.Lazy || c.opts.InactivityTimeout <= 0 || c.mgr.SubscriptionCount() > 0 {
		return
	}

	c.mx.Lock()
	defer c.mx.Unlock()

	interval.ClearTimeout(c.inactivityTimer)
	c.inactivityTimer = interval.SetTimeout(func() {
		if c.mgr.SubscriptionCount() == 0 {
			c.log.Debugf("closing inactive connection")
			c.Close()
		}
	}, c.opts.InactivityTimeout)
}

func (c *Client) connect(ctx context.Context) error {
	return c.dial(ctx, nil)
}

// reconnect is run by the reconnect timer. It does nothing when Close or
// another reconnect changed the generation after it was scheduled.
func (c *Client) reconnect(scheduled int) error {
	return c.dial(context.Background(), &scheduled)
}

func (c *Client) dial(ctx context.Context, scheduled *int) error {
	c.mx.Lock()
	if scheduled != nil && (*scheduled != c.generation || c.closedByUser) {
		c.mx.Unlock()
		c.log.Debugf("dropping stale reconnect")
		return nil
	}
	if c.conn != nil || c.status == StatusConnecting {
		c.mx.Unlock()
		return nil
	}
	interval.ClearTimeout(c.reconnectTimer)
	c.reconnectTimer = nil
	c.status = StatusConnecting
	c.closedByUser = false
	c.generation++
	generation := c.generation
	c.mx.Unlock()

	var params map[string]interface{}
	if c.opts.ConnectionParams != nil {
		params = c.opts.ConnectionParams()
	}

	dialer := *c.opts.Dialer
	dialer.Subprotocols = []string{c.protocol.Subprotocol()}

	c.log.Debugf("connecting")
	ws, _, err := dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		c.mx.Lock()
		current := c.generation == generation
		if current {
			c.status = StatusClosed
		}
		closedByUser := c.closedByUser
		c.mx.Unlock()

		err = fmt.Errorf("failed to connect to %s: %s", c.url, err)
		c.log.WithError(err).Warnf("connection failed")
		c.emitError(err)
		if current && !closedByUser {
			c.tryReconnect("connect_failed")
		}
		return err
	}

	if ws.Subprotocol() != c.protocol.Subprotocol() {
		c.log.Warnf("server selected subprotocol %q", ws.Subprotocol())
	}

	conn := newConnection(ws, c.log)

	c.mx.Lock()
	if c.generation != generation || c.closedByUser {
		c.mx.Unlock()
		conn.close(protocols.NormalClosure, "")
		return ErrClosed
	}
	c.conn = conn
	c.status = StatusOpen
	c.mx.Unlock()

	conn.log.Infof("connection opened")
	conn.watchAck(c.opts.AckTimeout)
	go c.readLoop(conn)

	if err := conn.send(c.protocol.InitMessage(params)); err != nil {
		conn.ws.Close()
		return err
	}

	return nil
}

func (c *Client) readLoop(conn *connection) {
	for {
		msg := &protocols.IncomingMessage{}
		if err := conn.ws.ReadJSON(msg); err != nil {
			c.handleConnectionLost(conn, err)
			return
		}

		event, err := c.protocol.Classify(msg)
		if err != nil {
			conn.log.WithError(err).Errorf("failed to handle message")
			c.emitError(err)
			continue
		}

		c.handleEvent(conn, event)
	}
}

func (c *Client) handleEvent(conn *connection, event *protocols.Event) {
	conn.log.Tracef("received %s event", event.Kind)

	switch event.Kind {
	case protocols.EventAck:
		c.handleAck(conn)

	case protocols.EventKeepAlive, protocols.EventPong:
		conn.touch()

	case protocols.EventPing:
		conn.touch()
		if pong := c.protocol.PongMessage(event.Payload); pong != nil {
			conn.send(*pong)
		}

	case protocols.EventData:
		if op, ok := c.mgr.Get(event.ID); ok {
			dropped := op.Dropped()
			op.Send(event.Result)
			if dropped == 0 && op.Dropped() > 0 {
				conn.log.WithField("operationId", op.ID).
					Warnf("subscription %q is not being read, dropping its oldest results", op.OperationName)
			}
		}

	case protocols.EventError:
		if op, ok := c.mgr.Get(event.ID); ok {
			op.Send(&protocols.ExecutionResult{Errors: event.Errors})
			conn.markStopped(event.ID)
			c.stop(event.ID)
		}

	case protocols.EventComplete:
		conn.markStopped(event.ID)
		c.stop(event.ID)

	case protocols.EventConnectionError:
		err := fmt.Errorf("connection error: %s", joinErrors(event.Errors))
		conn.log.WithError(err).Errorf("server rejected connection")
		c.emitError(err)
	}
}

func (c *Client) handleAck(conn *connection) {
	if !conn.setAcked() {
		return
	}

	c.backoff.Reset()
	conn.watchKeepAlive(c.opts.KeepAliveTimeout)

	c.mx.Lock()
	reconnected := c.everConnected
	c.everConnected = true
	c.mx.Unlock()

	conn.log.Debugf("connection acknowledged")

	for _, op := range c.mgr.All() {
		c.start(conn, op)
	}

	if reconnected {
		if c.opts.OnReconnected != nil {
			c.opts.OnReconnected()
		}
	} else if c.opts.OnConnected != nil {
		c.opts.OnConnected()
	}
}

func (c *Client) handleConnectionLost(conn *connection, err error) {
	c.mx.Lock()
	if c.conn != conn {
		c.mx.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusClosed
	closedByUser := c.closedByUser
	c.mx.Unlock()

	conn.close(protocols.NormalClosure, "")

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		conn.log.Debugf("connection closed by server")
	} else {
		conn.log.WithError(err).Warnf("connection lost")
	}

	if c.opts.OnDisconnected != nil {
		c.opts.OnDisconnected(err)
	}

	if closedByUser {
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if d, ok := c.protocol.(retryDecider); ok && !d.ShouldRetry(closeErr.Code) {
			c.failAll(fmt.Errorf("connection closed with code %d: %s", closeErr.Code, closeErr.Text))
			return
		}
	}

	c.tryReconnect("connection_lost")
}

// failAll delivers err to every operation and completes them
func (c *Client) failAll(err error) {
	for _, op := range c.mgr.All() {
		op.Send(&protocols.ExecutionResult{
			Errors: gqlerrors.FormattedErrors{gqlerrors.FormatError(err)},
		})
	}
	c.mgr.UnsubscribeAll()
	c.opts.Metrics.SetActiveSubscriptions(0)
	c.emitError(err)
}

// TryReconnect drops the current connection, if any, and schedules a new
// one after the next backoff delay. Active operations are resent with
// freshly evaluated connection params once the new connection is
// acknowledged.
func (c *Client) TryReconnect() {
	c.tryReconnect("requested")
}

// tryReconnect without Reconnect enabled fails the active operations unless
// the reconnect was explicitly requested
func (c *Client) tryReconnect(reason string) {
	if !c.opts.Reconnect {
		if reason != "requested" {
			c.failAll(fmt.Errorf("connection lost (%s) and reconnect is disabled", reason))
		}
		return
	}

	if c.opts.ReconnectionAttempts > 0 && c.backoff.Attempts() >= c.opts.ReconnectionAttempts {
		c.log.Warnf("giving up after %d reconnection attempts", c.opts.ReconnectionAttempts)
		c.failAll(fmt.Errorf("unable to reconnect after %d attempts", c.opts.ReconnectionAttempts))
		return
	}

	delay := c.backoff.Duration()

	c.mx.Lock()
	old := c.conn
	c.conn = nil
	c.closedByUser = false
	c.generation++
	scheduled := c.generation
	c.status = StatusClosed
	interval.ClearTimeout(c.reconnectTimer)
	c.reconnectTimer = interval.SetTimeout(func() {
		if err := c.reconnect(scheduled); err != nil {
			c.log.WithError(err).Debugf("reconnect attempt failed")
		}
	}, delay)
	c.mx.Unlock()

	if old != nil {
		old.close(protocols.NormalClosure, "")
	}

	c.opts.Metrics.IncReconnect(reason)
	c.log.Debugf("reconnecting in %s (%s)", delay, reason)
}

// Close completes every active operation, terminates the session and
// closes the socket. No automatic reconnect follows, a later Subscribe or
// TryReconnect opens a new connection.
func (c *Client) Close() error {
	c.mx.Lock()
	c.closedByUser = true
	c.generation++
	interval.ClearTimeout(c.reconnectTimer)
	c.reconnectTimer = nil
	interval.ClearTimeout(c.inactivityTimer)
	c.inactivityTimer = nil
	conn := c.conn
	c.conn = nil
	if conn != nil {
		c.status = StatusClosing
	} else {
		c.status = StatusClosed
	}
	c.mx.Unlock()

	ops := c.mgr.UnsubscribeAll()
	c.opts.Metrics.SetActiveSubscriptions(0)

	if conn == nil {
		return nil
	}

	for _, op := range ops {
		if conn.markStopped(op.ID) {
			conn.send(c.protocol.StopMessage(op.ID))
		}
	}

	if term := c.protocol.TerminateMessage(); term != nil && conn.isAcked() {
		conn.send(*term)
	}

	conn.close(protocols.NormalClosure, "")

	c.mx.Lock()
	if c.status == StatusClosing {
		c.status = StatusClosed
	}
	c.mx.Unlock()

	if c.opts.OnDisconnected != nil {
		c.opts.OnDisconnected(nil)
	}

	return nil
}

func (c *Client) emitError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func joinErrors(errs gqlerrors.FormattedErrors) string {
	msg := ""
	for i, err := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += err.Message
	}
	return msg
}
