package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_NoHandlers_ReturnsEmpty(t *testing.T) {
	bus := NewInMemoryEventBus()

	results := bus.Publish(context.Background(), "order.created", struct{}{})

	assert.Empty(t, results)
}

func TestPublish_InvokesAllHandlersInOrder(t *testing.T) {
	bus := NewInMemoryEventBus()

	var calls []string
	bus.Register("order.created", "first", func(ctx context.Context, event interface{}) error {
		calls = append(calls, "first")
		return nil
	})
	bus.Register("order.created", "second", func(ctx context.Context, event interface{}) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Register("order.paid", "other", func(ctx context.Context, event interface{}) error {
		calls = append(calls, "other")
		return nil
	})

	results := bus.Publish(context.Background(), "order.created", struct{}{})

	require.Len(t, results, 2)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, "first", results[0].Handler)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "second", results[1].Handler)
	assert.NoError(t, results[1].Err)
}

func TestPublish_OneHandlerFails_RestStillRun(t *testing.T) {
	bus := NewInMemoryEventBus()

	boom := errors.New("boom")
	bus.Register("order.paid", "failing", func(ctx context.Context, event interface{}) error {
		return boom
	})

	var secondRan bool
	bus.Register("order.paid", "healthy", func(ctx context.Context, event interface{}) error {
		secondRan = true
		return nil
	})

	results := bus.Publish(context.Background(), "order.paid", struct{}{})

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.NoError(t, results[1].Err)
	assert.True(t, secondRan)
}

func TestPublish_HandlerPanic_BecomesError(t *testing.T) {
	bus := NewInMemoryEventBus()

	bus.Register("order.cancelled", "panicky", func(ctx context.Context, event interface{}) error {
		panic("nil pointer somewhere")
	})

	results := bus.Publish(context.Background(), "order.cancelled", struct{}{})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "handler panic")
}

func TestPublish_EventReachesHandler(t *testing.T) {
	bus := NewInMemoryEventBus()

	type payload struct{ Value int }
	var got interface{}
	bus.Register("order.created", "capture", func(ctx context.Context, event interface{}) error {
		got = event
		return nil
	})

	bus.Publish(context.Background(), "order.created", &payload{Value: 42})

	require.NotNil(t, got)
	assert.Equal(t, 42, got.(*payload).Value)
}

func TestPublish_SlowHandlerBoundedByContext(t *testing.T) {
	bus := NewInMemoryEventBus()

	// Handler que ignora la cancelación del contexto.
	bus.Register("order.created", "sleeper", func(ctx context.Context, event interface{}) error {
		time.Sleep(2 * time.Second)
		return nil
	})
	bus.Register("order.created", "fast", func(ctx context.Context, event interface{}) error {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	results := bus.Publish(ctx, "order.created", struct{}{})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "dispatch no acotado por el deadline")
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}
