package manager

import (
	"context"
	"testing"
	"time"

	"github.com/bhoriuchi/graphql-go-client/ws/protocols"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOp(id string) *Operation {
	return NewOperation(context.Background(), id, &protocols.Payload{Query: "subscription { a }"})
}

func result(n int) *protocols.ExecutionResult {
	return &protocols.ExecutionResult{Extensions: map[string]interface{}{"n": n}}
}

func waitClosed(t *testing.T, op *Operation) []*protocols.ExecutionResult {
	t.Helper()
	var results []*protocols.ExecutionResult
	timeout := time.After(time.Second)
	for {
		select {
		case res, ok := <-op.C():
			if !ok {
				return results
			}
			results = append(results, res)
		case <-timeout:
			t.Fatal("channel was not closed")
			return nil
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	m := NewManager()
	op := newOp("1")

	require.NoError(t, m.Subscribe(op))
	assert.Error(t, m.Subscribe(newOp("1")))
	got, ok := m.Get("1")
	require.True(t, ok)
	assert.Same(t, op, got)
	assert.Equal(t, 1, m.SubscriptionCount())
	assert.Equal(t, "Unnamed Subscription", op.OperationName)

	assert.Same(t, op, m.Unsubscribe("1"))
	_, ok = m.Get("1")
	assert.False(t, ok)
	assert.Error(t, op.Context.Err())
	assert.Empty(t, waitClosed(t, op))

	assert.Nil(t, m.Unsubscribe("1"))
}

func TestSendAfterClose(t *testing.T) {
	op := newOp("1")
	assert.True(t, op.Send(result(1)))
	op.Close()
	op.Close()
	assert.False(t, op.Send(result(2)))

	results := waitClosed(t, op)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Extensions["n"])
}

func TestSendDoesNotBlock(t *testing.T) {
	op := newOp("1")
	defer op.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < ResultBufferSize*4; i++ {
			op.Send(result(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on an unread operation")
	}

	// results arrive in order once the consumer reads
	for i := 0; i < ResultBufferSize*4; i++ {
		select {
		case res := <-op.C():
			assert.Equal(t, i, res.Extensions["n"])
		case <-time.After(time.Second):
			t.Fatalf("result %d was not delivered", i)
		}
	}
	assert.Equal(t, 0, op.Dropped())
}

func TestSendDropsOldestWhenFull(t *testing.T) {
	op := newOp("1")
	defer op.Close()

	total := MaxPendingResults + ResultBufferSize + 10
	for i := 0; i < total; i++ {
		require.True(t, op.Send(result(i)))
	}

	assert.Eventually(t, func() bool { return len(op.C()) == ResultBufferSize }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, op.Dropped(), 9)

	var last *protocols.ExecutionResult
	delivered := total - op.Dropped()
	for i := 0; i < delivered; i++ {
		select {
		case last = <-op.C():
		case <-time.After(time.Second):
			t.Fatalf("result %d was not delivered", i)
		}
	}
	require.NotNil(t, last)
	assert.Equal(t, total-1, last.Extensions["n"])
}

func TestCloseKeepsBufferedResults(t *testing.T) {
	op := newOp("1")
	for i := 0; i < ResultBufferSize+5; i++ {
		op.Send(result(i))
	}
	op.Close()

	results := waitClosed(t, op)
	assert.GreaterOrEqual(t, len(results), ResultBufferSize)
	assert.Equal(t, 0, results[0].Extensions["n"])
}

func TestUnsubscribeAll(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Subscribe(newOp("1")))
	require.NoError(t, m.Subscribe(newOp("2")))
	assert.Len(t, m.All(), 2)

	ops := m.UnsubscribeAll()
	assert.Len(t, ops, 2)
	assert.Equal(t, 0, m.SubscriptionCount())
	for _, op := range ops {
		waitClosed(t, op)
	}
}
