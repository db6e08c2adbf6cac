package gqlclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

const defaultRequestTimeout = 10

// BeforeFunc modifies the request before it is sent
type BeforeFunc func(req *http.Request) error

// Request a graphql request
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`

	// Header is added to the http request, it is not part of the body
	Header http.Header `json:"-"`
}

// GetQuery gets the query
func (r *Request) GetQuery() string {
	return r.Query
}

// GetOperationName gets the operation name
func (r *Request) GetOperationName() string {
	return r.OperationName
}

// GetVariables gets the variables
func (r *Request) GetVariables() map[string]interface{} {
	if r.Variables == nil {
		return map[string]interface{}{}
	}
	return r.Variables
}

// converts the request to an io.Reader
func (r *Request) toReader() (body io.Reader, err error) {
	var j []byte
	out := *r
	out.Variables = r.GetVariables()
	j, err = json.Marshal(out)
	if err != nil {
		return
	}

	body = bytes.NewBuffer(j)
	return
}
