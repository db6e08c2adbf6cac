// Package provider makes a client available to request handlers through the
// request context
package provider

import (
	"context"
	"errors"
	"net/http"

	client "github.com/bhoriuchi/graphql-go-client"
	"github.com/gin-gonic/gin"
)

// ErrClientNotAvailable is returned when no client was provided
var ErrClientNotAvailable = errors.New("graphql client not yet available")

type contextKey struct{}

// ContextKey is the gin context key holding the client
const ContextKey = "graphql-client"

// NewContext returns a context carrying c
func NewContext(ctx context.Context, c *client.Client) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the client stored in ctx
func FromContext(ctx context.Context) (*client.Client, error) {
	if ctx == nil {
		return nil, ErrClientNotAvailable
	}

	c, ok := ctx.Value(contextKey{}).(*client.Client)
	if !ok || c == nil {
		return nil, ErrClientNotAvailable
	}
	return c, nil
}

// MustFromContext returns the client stored in ctx and panics without one
func MustFromContext(ctx context.Context) *client.Client {
	c, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return c
}

// Middleware adds c to the context of every request
func Middleware(c *client.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), c)))
		})
	}
}

// GinMiddleware adds c to the request context and the gin context
func GinMiddleware(c *client.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(ContextKey, c)
		ctx.Request = ctx.Request.WithContext(NewContext(ctx.Request.Context(), c))
		ctx.Next()
	}
}

// FromGin returns the client stored by GinMiddleware
func FromGin(ctx *gin.Context) (*client.Client, error) {
	v, ok := ctx.Get(ContextKey)
	if !ok {
		return nil, ErrClientNotAvailable
	}
	c, ok := v.(*client.Client)
	if !ok || c == nil {
		return nil, ErrClientNotAvailable
	}
	return c, nil
}
