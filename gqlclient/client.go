package gqlclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Options client options
type Options struct {
	URL            string
	Before         []BeforeFunc
	Insecure       bool
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client a graphql client
type Client struct {
	url        string
	before     []BeforeFunc
	httpClient *http.Client
}

// NewClient creates a new client
func NewClient(opts *Options) (client *Client, err error) {
	var httpClient *http.Client

	if opts == nil || opts.URL == "" {
		return nil, errors.New("gqlclient: no url provided")
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = time.Duration(defaultRequestTimeout) * time.Second
	}

	if opts.HTTPClient != nil {
		httpClient = opts.HTTPClient
	} else {
		httpClient = &http.Client{
			Timeout: opts.RequestTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: opts.Insecure,
				},
			},
		}
	}

	client = &Client{
		url:        opts.URL,
		before:     opts.Before,
		httpClient: httpClient,
	}
	return
}

// URL returns the endpoint
func (c *Client) URL() string {
	return c.url
}

// Request performs a request without a context
func (c *Client) Request(request Request) (rsp *Response, err error) {
	return c.Do(context.Background(), request)
}

// Do performs a request. GraphQL errors in a 200 response are available on
// the response, any other status is returned as a *StatusError
func (c *Client) Do(ctx context.Context, request Request) (rsp *Response, err error) {
	var body io.Reader
	rsp = &Response{}

	body, err = request.toReader()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	rsp.httpRequest, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}

	rsp.httpRequest.Header.Set("Content-Type", "application/json")
	rsp.httpRequest.Header.Set("Accept", "application/json")
	for key, values := range request.Header {
		rsp.httpRequest.Header.Del(key)
		for _, value := range values {
			rsp.httpRequest.Header.Add(key, value)
		}
	}

	// apply before middleware
	for _, before := range c.before {
		if err = before(rsp.httpRequest); err != nil {
			return nil, errors.Wrap(err, "before func failed")
		}
	}

	rsp.httpResponse, err = c.httpClient.Do(rsp.httpRequest)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer rsp.httpResponse.Body.Close()

	rsp.rawResult, err = io.ReadAll(rsp.httpResponse.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	var grsp graphQLResponse
	decodeErr := json.Unmarshal(rsp.rawResult, &grsp)

	if rsp.httpResponse.StatusCode != http.StatusOK {
		return rsp, &StatusError{
			StatusCode: rsp.httpResponse.StatusCode,
			Status:     rsp.httpResponse.Status,
			Errors:     grsp.Errors,
		}
	}

	if decodeErr != nil {
		return rsp, errors.Wrap(decodeErr, "failed to decode response")
	}

	rsp.data = grsp.Data
	rsp.extensions = grsp.Extensions
	if len(grsp.Errors) > 0 {
		rsp.errors = grsp.Errors
	}

	return
}
