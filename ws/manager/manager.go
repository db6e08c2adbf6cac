package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
)

const (
	// ResultBufferSize is the capacity of an operation's result channel
	ResultBufferSize = 16

	// MaxPendingResults is the number of results queued for a consumer that
	// is not reading. Beyond it the oldest queued result is dropped.
	MaxPendingResults = 1024
)

// Manager tracks the operations started on a subscription transport so they
// can be resent after a reconnect
type Manager struct {
	mx         sync.RWMutex
	operations map[string]*Operation
}

func NewManager() *Manager {
	return &Manager{
		operations: map[string]*Operation{},
	}
}

// Operation is a subscription started by a caller. Results are queued by
// Send and handed to the consumer by a goroutine owned by the operation, so
// a slow consumer never holds up the connection's read loop.
type Operation struct {
	ID            string
	OperationName string
	Payload       *protocols.Payload
	Context       context.Context
	CancelFunc    context.CancelFunc

	mx      sync.Mutex
	closed  bool
	pending []*protocols.ExecutionResult
	dropped int
	notify  chan struct{}
	closing chan struct{}
	channel chan *protocols.ExecutionResult
}

// NewOperation creates an operation bound to ctx, cancelling ctx completes it
func NewOperation(ctx context.Context, id string, payload *protocols.Payload) *Operation {
	opCtx, cancel := context.WithCancel(ctx)

	name := payload.OperationName
	if name == "" {
		name = "Unnamed Subscription"
	}

	op := &Operation{
		ID:            id,
		OperationName: name,
		Payload:       payload,
		Context:       opCtx,
		CancelFunc:    cancel,
		notify:        make(chan struct{}, 1),
		closing:       make(chan struct{}),
		channel:       make(chan *protocols.ExecutionResult, ResultBufferSize),
	}
	go op.deliver()

	return op
}

// C returns the result channel, it is closed when the operation completes
func (o *Operation) C() <-chan *protocols.ExecutionResult {
	return o.channel
}

// Send queues a result without blocking, it returns false if the operation
// is done
func (o *Operation) Send(result *protocols.ExecutionResult) bool {
	o.mx.Lock()
	if o.closed {
		o.mx.Unlock()
		return false
	}
	if len(o.pending) >= MaxPendingResults {
		o.pending[0] = nil
		o.pending = o.pending[1:]
		o.dropped++
	}
	o.pending = append(o.pending, result)
	o.mx.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

// Dropped returns the number of results dropped because the consumer fell
// too far behind
func (o *Operation) Dropped() int {
	o.mx.Lock()
	defer o.mx.Unlock()
	return o.dropped
}

// Close cancels the operation context and closes the result channel once
// the queued results that fit in its buffer have been handed over
func (o *Operation) Close() {
	if o.CancelFunc != nil {
		o.CancelFunc()
	}

	o.mx.Lock()
	defer o.mx.Unlock()

	if !o.closed {
		o.closed = true
		close(o.closing)
	}
}

func (o *Operation) next() (*protocols.ExecutionResult, bool) {
	o.mx.Lock()
	defer o.mx.Unlock()

	if len(o.pending) == 0 {
		return nil, false
	}
	res := o.pending[0]
	o.pending[0] = nil
	o.pending = o.pending[1:]
	return res, true
}

// deliver is the only writer of the result channel
func (o *Operation) deliver() {
	defer close(o.channel)

	for {
		res, ok := o.next()
		if !ok {
			select {
			case <-o.notify:
				continue
			case <-o.closing:
				o.flush(nil)
				return
			}
		}

		select {
		case o.channel <- res:
		case <-o.closing:
			o.flush(res)
			return
		}
	}
}

// flush moves what is left into the channel buffer, the rest is dropped
func (o *Operation) flush(res *protocols.ExecutionResult) {
	for {
		if res == nil {
			var ok bool
			if res, ok = o.next(); !ok {
				return
			}
		}

		select {
		case o.channel <- res:
			res = nil
		default:
			return
		}
	}
}

// SubscriptionCount counts the active operations
func (m *Manager) SubscriptionCount() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.operations)
}

// Get returns the operation with the given id
func (m *Manager) Get(operationID string) (*Operation, bool) {
	m.mx.RLock()
	defer m.mx.RUnlock()

	op, ok := m.operations[operationID]
	return op, ok
}

// All returns a snapshot of the active operations
func (m *Manager) All() []*Operation {
	m.mx.RLock()
	defer m.mx.RUnlock()

	ops := make([]*Operation, 0, len(m.operations))
	for _, op := range m.operations {
		ops = append(ops, op)
	}
	return ops
}

// Subscribe registers an operation
func (m *Manager) Subscribe(op *Operation) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	if _, ok := m.operations[op.ID]; ok {
		return fmt.Errorf("subscriber for %q already exists", op.ID)
	}

	m.operations[op.ID] = op
	return nil
}

// Unsubscribe removes and closes a single operation
func (m *Manager) Unsubscribe(operationID string) *Operation {
	m.mx.Lock()
	op, ok := m.operations[operationID]
	if ok {
		delete(m.operations, operationID)
	}
	m.mx.Unlock()

	if ok {
		op.Close()
	}

	return op
}

// UnsubscribeAll removes and closes every operation, returning them
func (m *Manager) UnsubscribeAll() []*Operation {
	m.mx.Lock()
	ops := make([]*Operation, 0, len(m.operations))
	for _, op := range m.operations {
		ops = append(ops, op)
	}
	m.operations = map[string]*Operation{}
	m.mx.Unlock()

	for _, op := range ops {
		op.Close()
	}

	return ops
}
