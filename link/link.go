// Package link composes the request pipeline of the client. Each link may
// inspect or modify an operation before forwarding it, terminating links
// send it to a transport.
package link

import (
	"context"
	"errors"

	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/graphql-go/graphql/gqlerrors"
)

// ErrNoTerminatingLink is returned when an operation reaches the end of a
// chain without being handled by a transport
var ErrNoTerminatingLink = errors.New("no terminating link in the link chain")

// Result is a single execution result
type Result = protocols.ExecutionResult

// NextLink forwards an operation to the rest of the chain
type NextLink func(ctx context.Context, op *Operation) (<-chan *Result, error)

// Link handles an operation
type Link interface {
	Request(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error)
}

// Func adapts a function to a Link
type Func func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error)

// Request calls f
func (f Func) Request(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
	return f(ctx, op, forward)
}

// From chains links left to right
func From(links ...Link) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		return chain(links, forward)(ctx, op)
	})
}

// Concat chains two links
func Concat(first, second Link) Link {
	return From(first, second)
}

func chain(links []Link, final NextLink) NextLink {
	if len(links) == 0 {
		return final
	}
	return func(ctx context.Context, op *Operation) (<-chan *Result, error) {
		if links[0] == nil {
			return chain(links[1:], final)(ctx, op)
		}
		return links[0].Request(ctx, op, chain(links[1:], final))
	}
}

// Split routes operations matching test to left and all others to right. A
// nil branch forwards to the rest of the chain.
func Split(test func(op *Operation) bool, left, right Link) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		next := right
		if test(op) {
			next = left
		}
		if next == nil {
			return forward(ctx, op)
		}
		return next.Request(ctx, op, forward)
	})
}

// ContextFunc computes headers for an operation
type ContextFunc func(ctx context.Context, op *Operation) (map[string]string, error)

// SetContext merges the headers returned by fn into the operation before
// forwarding it. Computed headers overwrite headers already on the operation.
func SetContext(fn ContextFunc) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		headers, err := fn(ctx, op)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			op.SetHeader(k, v)
		}
		return forward(ctx, op)
	})
}

// ErrorResponse describes a failed operation
type ErrorResponse struct {
	Operation     *Operation
	NetworkError  error
	GraphQLErrors gqlerrors.FormattedErrors
}

// ErrorHandler is called for network and GraphQL errors
type ErrorHandler func(resp ErrorResponse)

// OnError reports errors to handler, results pass through unchanged
func OnError(handler ErrorHandler) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		in, err := forward(ctx, op)
		if err != nil {
			handler(ErrorResponse{Operation: op, NetworkError: err})
			return nil, err
		}

		out := make(chan *Result, cap(in))
		go func() {
			defer close(out)
			for res := range in {
				if res.HasErrors() {
					handler(ErrorResponse{Operation: op, GraphQLErrors: res.Errors})
				}
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	})
}

// Execute runs an operation through a link
func Execute(ctx context.Context, l Link, op *Operation) (<-chan *Result, error) {
	if l == nil {
		return nil, ErrNoTerminatingLink
	}
	return l.Request(ctx, op, func(ctx context.Context, op *Operation) (<-chan *Result, error) {
		return nil, ErrNoTerminatingLink
	})
}

// Single returns a closed channel holding one result
func Single(res *Result) <-chan *Result {
	ch := make(chan *Result, 1)
	ch <- res
	close(ch)
	return ch
}

// First waits for the first result of a channel
func First(ctx context.Context, ch <-chan *Result) (*Result, error) {
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, errors.New("operation completed without a result")
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
