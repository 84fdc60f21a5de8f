package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "orders", []byte("filled")))
	assert.Equal(t, "filled", string(recv(t, ch)))
}

func TestSubscriberOnlySeesItsChannel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)
	positions, err := m.Subscribe(ctx, "positions")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "positions", []byte("opened")))

	assert.Equal(t, "opened", string(recv(t, positions)))
	select {
	case msg := <-orders:
		t.Fatalf("unexpected event on orders: %q", msg)
	default:
	}
}

func TestWildcardSubscription(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := m.Subscribe(ctx, "bars:*")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "bars:ES", []byte("bar")))
	assert.Equal(t, "bar", string(recv(t, all)))
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)
	b, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)

	require.NoError(t, m.Publish(ctx, "orders", []byte("x")))

	assert.Equal(t, "x", string(recv(t, a)))
	assert.Equal(t, "x", string(recv(t, b)))
}

func TestCancelClosesSubscription(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open, "channel must close on cancel")
	case <-time.After(time.Second):
		t.Fatal("channel did not close")
	}

	// Publishing after cancellation is a no-op, not an error.
	assert.NoError(t, m.Publish(context.Background(), "orders", []byte("late")))
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.Subscribe(ctx, "orders")
	require.NoError(t, err)

	// Fill well past the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer*2; i++ {
		require.NoError(t, m.Publish(ctx, "orders", []byte("e")))
	}
}
