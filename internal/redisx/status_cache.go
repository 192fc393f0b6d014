package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

type StatusEntry struct {
	OrderID       int64                `json:"order_id"`
	UserID        int64                `json:"user_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func EntryFor(o orders.Order) StatusEntry {
	return StatusEntry{
		OrderID: o.ID, UserID: o.UserID, Status: o.Status, PaymentStatus: o.PaymentStatus, UpdatedAt: o.UpdatedAt,
	}
}

// StatusCache keeps a short-lived copy of an order's status.
type StatusCache struct{ RDB *redis.Client }

func (c StatusCache) Put(ctx context.Context, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, e.OrderID), b, TTLStatusCache).Err()
}

// Get reports ok=false on a cache miss.
func (c StatusCache) Get(ctx context.Context, orderID int64) (StatusEntry, bool, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return StatusEntry{}, false, err
	}
	return e, true, nil
}
