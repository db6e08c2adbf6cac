package link

import (
	"context"
	"net/http"

	"github.com/bhoriuchi/graphql-go-client/gqlclient"
	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/bhoriuchi/graphql-go-client/ws/transport"
)

// NewHTTPLink sends operations with an http client and terminates the chain
func NewHTTPLink(client *gqlclient.Client) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		header := http.Header{}
		for k, v := range op.Headers {
			header.Set(k, v)
		}

		rsp, err := client.Do(ctx, gqlclient.Request{
			Query:         op.Query,
			OperationName: op.OperationName,
			Variables:     op.Variables,
			Extensions:    op.Extensions,
			Header:        header,
		})
		if err != nil {
			return nil, err
		}

		return Single(&Result{
			Data:       rsp.Data(),
			Errors:     rsp.Errors(),
			Extensions: rsp.Extensions(),
		}), nil
	})
}

// NewWebSocketLink sends operations over a subscription transport and
// terminates the chain. Authentication travels in the connection params so
// operation headers are not sent.
func NewWebSocketLink(client *transport.Client) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		return client.Subscribe(ctx, &protocols.Payload{
			Query:         op.Query,
			OperationName: op.OperationName,
			Variables:     op.Variables,
			Extensions:    op.Extensions,
		})
	})
}
