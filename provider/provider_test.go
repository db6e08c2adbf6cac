package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	client "github.com/bhoriuchi/graphql-go-client"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *client.Client {
	c, err := client.New(client.WithGraphQLURL("http://localhost:8080/v1/graphql"), client.WithSSRMode())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrClientNotAvailable)
	_, err = FromContext(nil)
	assert.ErrorIs(t, err, ErrClientNotAvailable)
	assert.Panics(t, func() { MustFromContext(context.Background()) })

	c := newClient(t)
	ctx := NewContext(context.Background(), c)
	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Same(t, c, MustFromContext(ctx))

	_, err = FromContext(NewContext(context.Background(), nil))
	assert.ErrorIs(t, err, ErrClientNotAvailable)
}

func TestMiddleware(t *testing.T) {
	c := newClient(t)

	var got *client.Client
	h := Middleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = MustFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, c, got)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := newClient(t)

	r := gin.New()
	r.Use(GinMiddleware(c))
	r.GET("/", func(ctx *gin.Context) {
		fromGin, err := FromGin(ctx)
		require.NoError(t, err)
		fromCtx, err := FromContext(ctx.Request.Context())
		require.NoError(t, err)
		assert.Same(t, fromGin, fromCtx)
		ctx.String(http.StatusOK, fromGin.URL())
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:8080/v1/graphql", rec.Body.String())

	bare := gin.New()
	bare.GET("/", func(ctx *gin.Context) {
		_, err := FromGin(ctx)
		assert.ErrorIs(t, err, ErrClientNotAvailable)
		ctx.Status(http.StatusOK)
	})
	bare.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
