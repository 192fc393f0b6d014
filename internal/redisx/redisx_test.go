package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *StatusCache {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := New(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("skipping Redis integration tests: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return &StatusCache{RDB: rdb}
}

func TestStatusCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	id := time.Now().UnixNano()

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, EntryFor(orders.Order{ID: id, UserID: 3, Status: orders.StatusConfirmed, PaymentStatus: orders.PaymentPaid})))
	e, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusConfirmed, e.Status)
	assert.EqualValues(t, 3, e.UserID)
}

func TestCallbackGuardAndDedup(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	token := "tok-" + time.Now().Format(time.RFC3339Nano)

	g := CallbackGuard{RDB: c.RDB}
	ok, err := g.Acquire(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = g.Acquire(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, g.Release(ctx, token))
	ok, err = g.Acquire(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	d := Dedup{RDB: c.RDB}
	ok, err = d.Claim(ctx, "test", token)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = d.Claim(ctx, "test", token)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, d.Release(ctx, "test", token))
}
