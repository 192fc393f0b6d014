package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePrice(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	tests := []struct {
		name string
		p    orders.Product
		want int64
	}{
		{"not on sale", orders.Product{Price: 1000, DiscountPercentage: 20}, 1000},
		{"on sale", orders.Product{Price: 1000, OnSale: true, DiscountPercentage: 20}, 800},
		{"window open", orders.Product{Price: 1000, OnSale: true, DiscountPercentage: 50, SaleStart: &before, SaleEnd: &after}, 500},
		{"not started", orders.Product{Price: 1000, OnSale: true, DiscountPercentage: 50, SaleStart: &after}, 1000},
		{"ended", orders.Product{Price: 1000, OnSale: true, DiscountPercentage: 50, SaleEnd: &before}, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cart.EffectivePrice(tt.p, now))
		})
	}
}

func TestSnapshotLines(t *testing.T) {
	s := cart.Snapshot{Lines: []cart.Line{
		{ProductID: 9, ProductName: "Mug", Quantity: 2, Price: 1000, LivePrice: 800},
	}}
	assert.False(t, s.Empty())
	assert.Equal(t, []orders.CartLine{{ProductID: 9, ProductName: "Mug", Quantity: 2, Price: 1000}}, s.OrderLines())
	assert.Equal(t, []orders.ItemQty{{ProductID: 9, Qty: 2}}, s.Quantities())
	assert.EqualValues(t, 1600, s.DisplayTotal())
}

func TestRepoSnapshotAndClear(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	repo := &cart.Repo{DB: pool}

	empty, err := repo.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	a := testutil.InsertProduct(t, pool, "A", 1000, 5)
	b := testutil.InsertProduct(t, pool, "B", 250, 5)
	require.NoError(t, repo.AddItem(ctx, 1, a, 2))
	require.NoError(t, repo.AddItem(ctx, 1, b, 1))
	require.NoError(t, repo.AddItem(ctx, 1, a, 1))

	s, err := repo.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, s.Lines, 2)
	assert.Equal(t, a, s.Lines[0].ProductID)
	assert.Equal(t, 3, s.Lines[0].Quantity)
	assert.EqualValues(t, 1000, s.Lines[0].Price)

	require.NoError(t, repo.Clear(ctx, s.CartID))
	s, err = repo.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.Empty())

	assert.True(t, orders.IsNotFound(repo.AddItem(ctx, 1, 999, 1)))
}

func TestRepoAddItemRecapturesPrice(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	repo := &cart.Repo{DB: pool}

	a := testutil.InsertProduct(t, pool, "A", 1000, 5)
	require.NoError(t, repo.AddItem(ctx, 1, a, 1))
	_, err := pool.Exec(ctx, `UPDATE products SET price=1500 WHERE id=$1`, a)
	require.NoError(t, err)
	require.NoError(t, repo.AddItem(ctx, 1, a, 1))

	s, err := repo.Snapshot(ctx, 1)
	require.NoError(t, err)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, 2, s.Lines[0].Quantity)
	assert.EqualValues(t, 1500, s.Lines[0].Price)
}
