package graphqltransportws

import (
	"encoding/json"
	"fmt"

	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/graphql-go/graphql/gqlerrors"
)

// Subprotocol - https://github.com/enisdenjo/graphql-ws/blob/master/PROTOCOL.md
const Subprotocol = "graphql-transport-ws"

// CloseCode a closing code
type CloseCode int

const (
	NormalClosure                    CloseCode = 1000
	InternalServerError              CloseCode = 4500
	InternalClientError              CloseCode = 4005
	BadRequest                       CloseCode = 4400
	BadResponse                      CloseCode = 4004
	Unauthorized                     CloseCode = 4401
	Forbidden                        CloseCode = 4403
	SubprotocolNotAcceptable         CloseCode = 4406
	ConnectionInitialisationTimeout  CloseCode = 4408
	ConnectionAcknowledgementTimeout CloseCode = 4504
	SubscriberAlreadyExists          CloseCode = 4409
	TooManyInitialisationRequests    CloseCode = 4429
)

// closes the server uses to reject the client outright
var fatalCloseCodes = map[CloseCode]bool{
	InternalServerError:           true,
	InternalClientError:           true,
	BadRequest:                    true,
	BadResponse:                   true,
	Unauthorized:                  true,
	SubprotocolNotAcceptable:      true,
	SubscriberAlreadyExists:       true,
	TooManyInitialisationRequests: true,
}

// Protocol is the client side of the graphql-transport-ws protocol
type Protocol struct{}

// New returns the graphql-transport-ws protocol
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
		Type:    protocols.MsgSubscribe,
		Payload: payload,
	}
}

func (p *Protocol) StopMessage(id string) protocols.OperationMessage {
	return protocols.OperationMessage{
		ID:   id,
		Type: protocols.MsgComplete,
	}
}

// TerminateMessage is nil, the protocol ends with a normal closure frame
func (p *Protocol) TerminateMessage() *protocols.OperationMessage {
	return nil
}

func (p *Protocol) PongMessage(payload json.RawMessage) *protocols.OperationMessage {
	msg := &protocols.OperationMessage{
		Type: protocols.MsgPong,
	}
	if len(payload) > 0 && string(payload) != "null" {
		msg.Payload = payload
	}
	return msg
}

// ShouldRetry reports whether a connection closed with code may be retried
func (p *Protocol) ShouldRetry(code int) bool {
	return !fatalCloseCodes[CloseCode(code)]
}

func (p *Protocol) Classify(msg *protocols.IncomingMessage) (*protocols.Event, error) {
	switch msg.Type {
	case protocols.MsgConnectionAck:
		return &protocols.Event{Kind: protocols.EventAck, Payload: msg.Payload}, nil

	case protocols.MsgPing:
		return &protocols.Event{Kind: protocols.EventPing, Payload: msg.Payload}, nil

	case protocols.MsgPong:
		return &protocols.Event{Kind: protocols.EventPong, Payload: msg.Payload}, nil

	case protocols.MsgNext:
		if msg.ID == "" {
			return nil, fmt.Errorf("message is missing the 'id' property")
		}
		result, err := protocols.DecodeResult(msg.Payload)
		if err != nil {
			return nil, err
		}
		return &protocols.Event{Kind: protocols.EventData, ID: msg.ID, Result: result}, nil

	case protocols.MsgError:
		if msg.ID == "" {
			return nil, fmt.Errorf("message is missing the 'id' property")
		}
		errs := gqlerrors.FormattedErrors{}
		if err := json.Unmarshal(msg.Payload, &errs); err != nil || len(errs) == 0 {
			return nil, fmt.Errorf("message expects the 'payload' property to be an array of GraphQL errors")
		}
		return &protocols.Event{Kind: protocols.EventError, ID: msg.ID, Errors: errs}, nil

	case protocols.MsgComplete:
		if msg.ID == "" {
			return nil, fmt.Errorf("message is missing the 'id' property")
		}
		return &protocols.Event{Kind: protocols.EventComplete, ID: msg.ID}, nil
	}

	return nil, fmt.Errorf("unhandled message type %q", msg.Type)
}
