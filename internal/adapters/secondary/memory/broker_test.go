package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
)

func TestBroker_PublishReachesSubscribers(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	var got [][]byte
	require.NoError(t, b.Subscribe(ctx, "realtime:events", func(payload []byte) {
		got = append(got, payload)
	}))

	require.NoError(t, b.Publish(ctx, "realtime:events", []byte("one")))
	require.NoError(t, b.Publish(ctx, "realtime:events", []byte("two")))

	require.Len(t, got, 2)
	assert.Equal(t, []byte("one"), got[0])
	assert.Equal(t, []byte("two"), got[1])
}

func TestBroker_ChannelsAreIsolated(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	var events, other int
	require.NoError(t, b.Subscribe(ctx, "realtime:events", func([]byte) { events++ }))
	require.NoError(t, b.Subscribe(ctx, "other", func([]byte) { other++ }))

	require.NoError(t, b.Publish(ctx, "realtime:events", []byte("x")))

	assert.Equal(t, 1, events)
	assert.Equal(t, 0, other)
}

func TestBroker_FanOutToAllSubscribers(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	var a, c int
	require.NoError(t, b.Subscribe(ctx, "realtime:events", func([]byte) { a++ }))
	require.NoError(t, b.Subscribe(ctx, "realtime:events", func([]byte) { c++ }))

	require.NoError(t, b.Publish(ctx, "realtime:events", []byte("x")))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}

func TestBroker_PublishWithoutSubscribers(t *testing.T) {
	b := NewBroker()

	assert.NoError(t, b.Publish(context.Background(), "realtime:events", []byte("x")))
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	require.NoError(t, b.Subscribe(ctx, "realtime:events", func([]byte) {
		t.Fatal("handler must not fire after close")
	}))
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(ctx, "realtime:events", []byte("x")), apperrors.ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(ctx, "realtime:events", func([]byte) {}), apperrors.ErrBrokerClosed)
}
