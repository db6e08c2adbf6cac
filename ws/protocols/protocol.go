package protocols

import (
	"encoding/json"

	"github.com/graphql-go/graphql/gqlerrors"
)

// EventKind classifies an incoming message independent of the subprotocol
type EventKind int

const (
	EventUnknown EventKind = iota
	EventAck
	EventKeepAlive
	EventPing
	EventPong
	EventData
	EventError
	EventComplete
	EventConnectionError
)

var eventNames = map[EventKind]string{
	EventUnknown:         "unknown",
	EventAck:             "ack",
	EventKeepAlive:       "keep_alive",
	EventPing:            "ping",
	EventPong:            "pong",
	EventData:            "data",
	EventError:           "error",
	EventComplete:        "complete",
	EventConnectionError: "connection_error",
}

func (k EventKind) String() string {
	return eventNames[k]
}

// Event is a classified incoming message
type Event struct {
	Kind    EventKind
	ID      string
	Result  *ExecutionResult
	Errors  gqlerrors.FormattedErrors
	Payload json.RawMessage
}

// Protocol builds outgoing messages and classifies incoming ones for a
// single websocket subprotocol
type Protocol interface {
	// Subprotocol is the value negotiated in the Sec-WebSocket-Protocol header
	Subprotocol() string

	// InitMessage opens the GraphQL session with the connection params
	InitMessage(params map[string]interface{}) OperationMessage

	// StartMessage starts an operation
	StartMessage(id string, payload *Payload) OperationMessage

	// StopMessage stops an operation
	StopMessage(id string) OperationMessage

	// TerminateMessage is sent before a client initiated close, nil when the
	// protocol closes with a close frame only
	TerminateMessage() *OperationMessage

	// PongMessage answers a server ping, nil when pings are not part of the
	// protocol
	PongMessage(payload json.RawMessage) *OperationMessage

	// Classify turns an incoming message into an event
	Classify(msg *IncomingMessage) (*Event, error)
}
