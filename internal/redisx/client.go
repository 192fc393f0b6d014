package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Dedup claims keys with SET NX so only the first caller wins.
type Dedup struct{ RDB *redis.Client }

func (d Dedup) Claim(ctx context.Context, scope, id string) (bool, error) {
	return d.RDB.SetNX(ctx, fmt.Sprintf(KeyDedup, scope, id), "1", TTLDedup).Result()
}

func (d Dedup) Release(ctx context.Context, scope, id string) error {
	return d.RDB.Del(ctx, fmt.Sprintf(KeyDedup, scope, id)).Err()
}

// CallbackGuard serialises deliveries of one payment callback token.
type CallbackGuard struct{ RDB *redis.Client }

func (g CallbackGuard) Acquire(ctx context.Context, token string) (bool, error) {
	return g.RDB.SetNX(ctx, fmt.Sprintf(KeyPaymentConfirm, token), "1", TTLPaymentConfirm).Result()
}

func (g CallbackGuard) Release(ctx context.Context, token string) error {
	return g.RDB.Del(ctx, fmt.Sprintf(KeyPaymentConfirm, token)).Err()
}
