package gqlclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/graphql-go/graphql/gqlerrors"
)

// graphql json response
type graphQLResponse struct {
	Data       json.RawMessage           `json:"data"`
	Errors     gqlerrors.FormattedErrors `json:"errors"`
	Extensions map[string]interface{}    `json:"extensions"`
}

// StatusError is returned for non 200 responses
type StatusError struct {
	StatusCode int
	Status     string
	Errors     gqlerrors.FormattedErrors
}

func (e *StatusError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s", e.Status, e.Errors[0].Message)
	}
	return e.Status
}

// Response response object
type Response struct {
	httpRequest  *http.Request
	httpResponse *http.Response
	rawResult    []byte
	data         json.RawMessage
	errors       gqlerrors.FormattedErrors
	extensions   map[string]interface{}
}

// HTTPRequest returns the http request
func (c *Response) HTTPRequest() *http.Request {
	return c.httpRequest
}

// HTTPResponse returns the http response
func (c *Response) HTTPResponse() *http.Response {
	return c.httpResponse
}

// RawResult returns the raw result body
func (c *Response) RawResult() []byte {
	return c.rawResult
}

// Data returns the data
func (c *Response) Data() json.RawMessage {
	return c.data
}

// Extensions returns the response extensions
func (c *Response) Extensions() map[string]interface{} {
	return c.extensions
}

// Errors returns the errors
func (c *Response) Errors() gqlerrors.FormattedErrors {
	return c.errors
}

// FirstError returns the first error
func (c *Response) FirstError() *gqlerrors.FormattedError {
	if c.HasErrors() {
		first := c.errors[0]
		return &first
	}
	return nil
}

// HasErrors returns true if errors are present
func (c *Response) HasErrors() bool {
	return len(c.errors) > 0
}

// Decode decodes the result data into the provided interface
func (c *Response) Decode(out interface{}) (err error) {
	if len(c.data) == 0 || string(c.data) == "null" {
		err = fmt.Errorf("no data to decode")
		return
	}

	err = json.Unmarshal(c.data, out)
	return
}
