package client

import (
	"net/http"

	"github.com/bhoriuchi/graphql-go-client/auth"
)

const (
	// DefaultPublicRole is sent as the role header without a session
	DefaultPublicRole = "public"

	HeaderAuthorization        = "authorization"
	HeaderRole                 = "role"
	HeaderSecWebSocketProtocol = "Sec-WebSocket-Protocol"
)

// Headers are request headers sent with http operations and in the
// subscription connection params
type Headers map[string]string

// Clone copies the headers
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// HTTPHeader converts the headers to an http.Header
func (h Headers) HTTPHeader() http.Header {
	header := http.Header{}
	for k, v := range h {
		header.Set(k, v)
	}
	return header
}

// AuthHeaders computes the headers for a single request or connection. With
// an explicit GraphQL url the provider is ignored, otherwise a bearer token
// is added for an authenticated session and the public role for anyone
// else. base is never modified.
func AuthHeaders(provider auth.Provider, publicRole string, base Headers, explicitURL bool) Headers {
	headers := base.Clone()
	headers[HeaderSecWebSocketProtocol] = "graphql-ws"

	if explicitURL {
		return headers
	}

	if publicRole == "" {
		publicRole = DefaultPublicRole
	}

	if provider != nil && provider.IsAuthenticated() {
		headers[HeaderAuthorization] = "Bearer " + provider.AccessToken()
	} else {
		headers[HeaderRole] = publicRole
	}

	return headers
}
