package graphqlws

import (
	"encoding/json"
	"fmt"

	"github.com/bhoriuchi/graphql-go-client/utils"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Subprotocol - https://github.com/apollographql/subscriptions-transport-ws/blob/master/PROTOCOL.md
const Subprotocol = "graphql-ws"

// Protocol is the client side of the subscriptions-transport-ws protocol
type Protocol struct{}

// New returns the graphql-ws protocol
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Subprotocol() string {
	return Subprotocol
}

func (p *Protocol) InitMessage(params map[string]interface{}) protocols.OperationMessage {
	msg := protocols.OperationMessage{
		Type: protocols.MsgConnectionInit,
	}
	if params != nil {
		msg.Payload = params
	}
	return msg
}

func (p *Protocol) StartMessage(id string, payload *protocols.Payload) protocols.OperationMessage {
	return protocols.OperationMessage{
		ID:      id,
		Type:    protocols.MsgStart,
		Payload: payload,
	}
}

func (p *Protocol) StopMessage(id string) protocols.OperationMessage {
	return protocols.OperationMessage{
		ID:   id,
		Type: protocols.MsgStop,
	}
}

func (p *Protocol) TerminateMessage() *protocols.OperationMessage {
	return &protocols.OperationMessage{
		Type: protocols.MsgConnectionTerminate,
	}
}

// PongMessage is nil, the server sends ka messages instead of pings
func (p *Protocol) PongMessage(payload json.RawMessage) *protocols.OperationMessage {
	return nil
}

func (p *Protocol) Classify(msg *protocols.IncomingMessage) (*protocols.Event, error) {
	switch msg.Type {
	case protocols.MsgConnectionAck:
		return &protocols.Event{Kind: protocols.EventAck, Payload: msg.Payload}, nil

	case protocols.MsgKeepAlive:
		return &protocols.Event{Kind: protocols.EventKeepAlive}, nil

	case protocols.MsgData:
		if msg.ID == "" {
			return nil, fmt.Errorf("data message contains no ID")
		}
		result, err := protocols.DecodeResult(msg.Payload)
		if err != nil {
			return nil, err
		}
		return &protocols.Event{Kind: protocols.EventData, ID: msg.ID, Result: result}, nil

	case protocols.MsgError:
		return &protocols.Event{
			Kind:   protocols.EventError,
			ID:     msg.ID,
			Errors: decodeErrors(msg.Payload),
		}, nil

	case protocols.MsgComplete:
		return &protocols.Event{Kind: protocols.EventComplete, ID: msg.ID}, nil

	case protocols.MsgConnectionError:
		return &protocols.Event{
			Kind:   protocols.EventConnectionError,
			Errors: decodeErrors(msg.Payload),
		}, nil
	}

	return nil, fmt.Errorf("unhandled message type %q", msg.Type)
}

// error payloads are a single error object or an array of them
func decodeErrors(raw json.RawMessage) gqlerrors.FormattedErrors {
	var v interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			v = string(raw)
		}
	}
	return utils.GQLErrors(v)
}
