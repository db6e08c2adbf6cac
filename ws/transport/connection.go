package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/utils/interval"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// connection wraps a single websocket, a reconnect always creates a new one
type connection struct {
	id  string
	ws  *websocket.Conn
	log *logger.LogWrapper

	writeMx sync.Mutex

	mx        sync.Mutex
	acked     bool
	started   map[string]bool
	ackTimer  *interval.Interval
	kaTimer   *interval.Interval
	closeOnce sync.Once

	kaReceived int32
}

func newConnection(ws *websocket.Conn, log *logger.LogWrapper) *connection {
	id := uuid.NewString()
	return &connection{
		id:      id,
		ws:      ws,
		log:     log.WithField("connectionId", id),
		started: map[string]bool{},
	}
}

// send writes a message, gorilla allows only one concurrent writer
func (c *connection) send(msg protocols.OperationMessage) error {
	c.writeMx.Lock()
	defer c.writeMx.Unlock()

	c.log.Tracef("send message: %s", msg.String())
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.log.WithError(err).Warnf("failed to write message")
		return err
	}
	return nil
}

func (c *connection) isAcked() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.acked
}

func (c *connection) setAcked() bool {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.acked {
		return false
	}
	c.acked = true
	interval.ClearTimeout(c.ackTimer)
	return true
}

// markStarted returns true the first time an operation id is started on
// this connection
func (c *connection) markStarted(id string) bool {
	c.mx.Lock()
	defer c.mx.Unlock()

	if !c.acked || c.started[id] {
		return false
	}
	c.started[id] = true
	return true
}

// markStopped returns true if the operation was started on this connection
func (c *connection) markStopped(id string) bool {
	c.mx.Lock()
	defer c.mx.Unlock()

	if !c.started[id] {
		return false
	}
	delete(c.started, id)
	return true
}

// touch records a keep-alive
func (c *connection) touch() {
	atomic.StoreInt32(&c.kaReceived, 1)
}

// consumeKeepAlive returns true if a keep-alive arrived since the last call
func (c *connection) consumeKeepAlive() bool {
	return atomic.SwapInt32(&c.kaReceived, 0) == 1
}

// watchAck drops the connection if the server never acknowledges it
func (c *connection) watchAck(timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	c.mx.Lock()
	defer c.mx.Unlock()

	c.ackTimer = interval.SetTimeout(func() {
		if !c.isAcked() {
			c.log.Warnf("connection was not acknowledged within %s", timeout)
			c.ws.Close()
		}
	}, timeout)
}

// watchKeepAlive drops the connection when keep-alives stop arriving
func (c *connection) watchKeepAlive(timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	c.touch()

	c.mx.Lock()
	defer c.mx.Unlock()

	c.kaTimer = interval.SetInterval(func(i *interval.Interval) {
		if !c.consumeKeepAlive() {
			i.Clear()
			c.log.Warnf("no keep-alive received within %s", timeout)
			c.ws.Close()
		}
	}, timeout)
}

// close sends a close frame and closes the socket
func (c *connection) close(code protocols.CloseCode, reason string) {
	c.closeOnce.Do(func() {
		c.mx.Lock()
		interval.ClearTimeout(c.ackTimer)
		interval.ClearInterval(c.kaTimer)
		c.mx.Unlock()

		msg := websocket.FormatCloseMessage(int(code), reason)
		c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.ws.Close()
		c.log.Debugf("closed connection")
	})
}
