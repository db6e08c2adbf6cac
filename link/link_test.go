package link

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bhoriuchi/graphql-go-client/gqlclient"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terminating(name string, calls *[]string) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		*calls = append(*calls, name)
		return Single(&Result{Data: json.RawMessage(`{"via":"` + name + `"}`)}), nil
	})
}

func passthrough(name string, calls *[]string) Link {
	return Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		*calls = append(*calls, name)
		return forward(ctx, op)
	})
}

func TestMainDefinition(t *testing.T) {
	cases := []struct {
		name      string
		query     string
		opName    string
		wantKind  string
		wantFrag  bool
		wantError bool
	}{
		{name: "shorthand query", query: "{ a }", wantKind: "query"},
		{name: "first operation", query: "subscription S { a } query Q { b }", wantKind: "subscription"},
		{name: "named operation", query: "query Q { b } subscription S { a }", opName: "S", wantKind: "subscription"},
		{name: "unknown name", query: "query Q { b }", opName: "S", wantError: true},
		{name: "fragment only", query: "fragment F on User { id }", wantFrag: true},
		{name: "operation after fragment", query: "fragment F on User { id } mutation M { a }", wantKind: "mutation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			op := NewOperation(tc.query, tc.opName, nil)
			doc, err := op.Document()
			require.NoError(t, err)

			def, err := MainDefinition(doc, tc.opName)
			if tc.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tc.wantFrag {
				assert.IsType(t, &ast.FragmentDefinition{}, def)
				assert.Equal(t, "", op.Kind())
				return
			}
			assert.Equal(t, tc.wantKind, def.(*ast.OperationDefinition).Operation)
			assert.Equal(t, tc.wantKind, op.Kind())
		})
	}

	_, err := MainDefinition(nil, "")
	assert.Error(t, err)
}

func TestIsSubscription(t *testing.T) {
	assert.True(t, IsSubscription(NewOperation("subscription { messages { id } }", "", nil)))
	assert.False(t, IsSubscription(NewOperation("query { messages { id } }", "", nil)))
	assert.False(t, IsSubscription(NewOperation("mutation { send }", "", nil)))
	assert.False(t, IsSubscription(NewOperation("subscription {", "", nil)))
}

func TestFromOrder(t *testing.T) {
	calls := []string{}
	l := From(passthrough("a", &calls), nil, passthrough("b", &calls), terminating("http", &calls))

	ch, err := Execute(context.Background(), l, NewOperation("{ a }", "", nil))
	require.NoError(t, err)
	res, err := First(context.Background(), ch)
	require.NoError(t, err)

	assert.JSONEq(t, `{"via":"http"}`, string(res.Data))
	assert.Equal(t, []string{"a", "b", "http"}, calls)
}

func TestNoTerminatingLink(t *testing.T) {
	calls := []string{}
	_, err := Execute(context.Background(), Concat(passthrough("a", &calls), passthrough("b", &calls)), NewOperation("{ a }", "", nil))
	assert.ErrorIs(t, err, ErrNoTerminatingLink)

	_, err = Execute(context.Background(), nil, NewOperation("{ a }", "", nil))
	assert.ErrorIs(t, err, ErrNoTerminatingLink)
}

func TestSplit(t *testing.T) {
	calls := []string{}
	l := Split(IsSubscription, terminating("ws", &calls), terminating("http", &calls))

	_, err := Execute(context.Background(), l, NewOperation("subscription { a }", "", nil))
	require.NoError(t, err)
	_, err = Execute(context.Background(), l, NewOperation("query { a }", "", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"ws", "http"}, calls)

	// nil branch forwards
	calls = []string{}
	l = From(Split(IsSubscription, terminating("ws", &calls), nil), terminating("http", &calls))
	_, err = Execute(context.Background(), l, NewOperation("query { a }", "", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"http"}, calls)
}

func TestSetContext(t *testing.T) {
	var seen map[string]string
	capture := Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		seen = op.Headers
		return Single(&Result{}), nil
	})

	op := NewOperation("{ a }", "", nil)
	op.SetHeader("x-request-id", "1")
	op.SetHeader("role", "user")

	l := From(SetContext(func(ctx context.Context, op *Operation) (map[string]string, error) {
		return map[string]string{"role": "public"}, nil
	}), capture)

	_, err := Execute(context.Background(), l, op)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x-request-id": "1", "role": "public"}, seen)

	failing := SetContext(func(ctx context.Context, op *Operation) (map[string]string, error) {
		return nil, assert.AnError
	})
	_, err = Execute(context.Background(), From(failing, capture), NewOperation("{ a }", "", nil))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestOnError(t *testing.T) {
	var reported []ErrorResponse
	handler := OnError(func(resp ErrorResponse) {
		reported = append(reported, resp)
	})

	networkErr := errors.New("connection refused")
	failing := Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		return nil, networkErr
	})
	_, err := Execute(context.Background(), From(handler, failing), NewOperation("{ a }", "", nil))
	assert.ErrorIs(t, err, networkErr)
	require.Len(t, reported, 1)
	assert.Equal(t, networkErr, reported[0].NetworkError)

	withErrors := Func(func(ctx context.Context, op *Operation, forward NextLink) (<-chan *Result, error) {
		return Single(&Result{Errors: gqlerrors.FormattedErrors{gqlerrors.NewFormattedError("denied")}}), nil
	})
	ch, err := Execute(context.Background(), From(handler, withErrors), NewOperation("{ a }", "", nil))
	require.NoError(t, err)

	res, err := First(context.Background(), ch)
	require.NoError(t, err)
	assert.Equal(t, "denied", res.Errors[0].Message)

	// channel closes after the single result
	_, ok := <-ch
	assert.False(t, ok)

	require.Len(t, reported, 2)
	assert.Equal(t, "denied", reported[1].GraphQLErrors[0].Message)
}

func TestFirst(t *testing.T) {
	ch := make(chan *Result)
	close(ch)
	_, err := First(context.Background(), ch)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = First(ctx, make(chan *Result))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "public", r.Header.Get("role"))
		w.Write([]byte(`{"data":{"a":1},"errors":[{"message":"partial"}]}`))
	}))
	defer srv.Close()

	client, err := gqlclient.NewClient(&gqlclient.Options{URL: srv.URL})
	require.NoError(t, err)

	op := NewOperation("{ a }", "", nil)
	op.SetHeader("role", "public")

	ch, err := Execute(context.Background(), NewHTTPLink(client), op)
	require.NoError(t, err)
	res, err := First(context.Background(), ch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(res.Data))
	assert.Equal(t, "partial", res.Errors[0].Message)
}

func TestHTTPLinkStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := gqlclient.NewClient(&gqlclient.Options{URL: srv.URL})
	require.NoError(t, err)

	_, err = Execute(context.Background(), NewHTTPLink(client), NewOperation("{ a }", "", nil))
	var statusErr *gqlclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
