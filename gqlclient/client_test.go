package gqlclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Options{URL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(&Options{})
	assert.Error(t, err)
}

func TestDo(t *testing.T) {
	var body map[string]interface{}
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Before"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"data":{"hello":"world"},"extensions":{"cost":1}}`))
	})
	client.before = []BeforeFunc{func(req *http.Request) error {
		req.Header.Set("X-Before", "yes")
		return nil
	}}

	rsp, err := client.Do(context.Background(), Request{
		Query:         "query Hello { hello }",
		OperationName: "Hello",
		Header:        http.Header{"Authorization": []string{"Bearer abc"}},
	})
	require.NoError(t, err)
	assert.False(t, rsp.HasErrors())
	assert.Nil(t, rsp.FirstError())
	assert.JSONEq(t, `{"hello":"world"}`, string(rsp.Data()))
	assert.Equal(t, float64(1), rsp.Extensions()["cost"])

	var out struct {
		Hello string `json:"hello"`
	}
	require.NoError(t, rsp.Decode(&out))
	assert.Equal(t, "world", out.Hello)

	assert.Equal(t, "query Hello { hello }", body["query"])
	assert.Equal(t, "Hello", body["operationName"])
	assert.Equal(t, map[string]interface{}{}, body["variables"])
	assert.NotContains(t, body, "Header")
}

func TestDoGraphQLErrors(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"field not found"}]}`))
	})

	rsp, err := client.Request(Request{Query: "{ missing }"})
	require.NoError(t, err)
	require.True(t, rsp.HasErrors())
	assert.Equal(t, "field not found", rsp.FirstError().Message)
	assert.Error(t, rsp.Decode(&struct{}{}))
}

func TestDoStatusError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":[{"message":"invalid token"}]}`))
	})

	rsp, err := client.Do(context.Background(), Request{Query: "{ me }"})
	require.Error(t, err)
	require.NotNil(t, rsp)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestDoBeforeError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	client.before = []BeforeFunc{func(req *http.Request) error {
		return assert.AnError
	}}

	_, err := client.Do(context.Background(), Request{Query: "{ a }"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDoCancelled(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Do(ctx, Request{Query: "{ a }"})
	assert.ErrorIs(t, err, context.Canceled)
}
