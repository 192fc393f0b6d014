package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderNumber string `json:"order_number"`
	}
	raw := json.RawMessage(MustMarshal(payload{OrderNumber: "ORD-1"}))

	got, err := UnwrapPayload[payload](raw)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.OrderNumber)

	_, err = UnwrapPayload[payload](json.RawMessage(`{`))
	require.Error(t, err)
}

func TestEventHeaders(t *testing.T) {
	h := EventHeaders("NotificationRequested", 1)
	require.Len(t, h, 2)
	assert.Equal(t, HeaderEventType, h[0].Key)
	assert.Equal(t, "1", string(h[1].Value))
}

func TestPublishDoesNotBlock(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "t", 1, nil)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, []byte("k"), []byte("v1")))
	assert.ErrorIs(t, p.Publish(ctx, []byte("k"), []byte("v2")), ErrProducerFull)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := p.Publish(cancelled, []byte("k"), []byte("v3"))
	assert.Error(t, err)
}

func TestProducerRejectsAfterShutdown(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "t", 4, nil)
	p.Start(context.Background())
	p.Close()
	require.NotPanics(t, p.Close)
	p.WaitClosed()
	assert.ErrorIs(t, p.Publish(context.Background(), []byte("k"), []byte("v")), ErrProducerClosed)

	ctx, cancel := context.WithCancel(context.Background())
	q := NewProducer([]string{"localhost:9092"}, "t", 4, nil)
	q.Start(ctx)
	cancel()
	q.WaitClosed()
	assert.ErrorIs(t, q.Publish(context.Background(), []byte("k"), []byte("v")), ErrProducerClosed)
	require.NotPanics(t, q.Close)
}
