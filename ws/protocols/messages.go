package protocols

import (
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql/gqlerrors"
)

// OperationMessage is an outgoing protocol message
type OperationMessage struct {
	ID      string      `json:"id,omitempty"`
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func (msg OperationMessage) String() string {
	s, _ := json.Marshal(msg)
	if s != nil {
		return string(s)
	}
	return "<invalid>"
}

// IncomingMessage is a message received from the server with its payload
// left undecoded until the message type is known
type IncomingMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasPayload returns true if the payload field exists and is not null
func (m *IncomingMessage) HasPayload() bool {
	return len(m.Payload) > 0 && string(m.Payload) != "null"
}

// Payload is the operation sent to start a subscription
type Payload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// Validate checks the payload can be sent
func (p *Payload) Validate() error {
	if p == nil || p.Query == "" {
		return fmt.Errorf("no query specified in subscription payload")
	}
	return nil
}

// ExecutionResult result of an execution
type ExecutionResult struct {
	Data       json.RawMessage           `json:"data,omitempty"`
	Errors     gqlerrors.FormattedErrors `json:"errors,omitempty"`
	Extensions map[string]interface{}    `json:"extensions,omitempty"`
}

// HasErrors returns true if errors are present
func (r *ExecutionResult) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// DecodeResult decodes an execution result payload
func DecodeResult(raw json.RawMessage) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("failed to parse execution result: %s", err)
	}
	return result, nil
}
