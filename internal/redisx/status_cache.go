package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-courier-orders/internal/orders"
)

type kv interface {
	redis.Scripter
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// fillScript sets KEYS[2] only while KEYS[1] still holds the generation the
// reader saw before going to the store.
var fillScript = redis.NewScript(`
if (redis.call('GET', KEYS[1]) or '') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// StatusCache keeps order summaries for GET /order/{id}. The store stays the
// source of truth; entries are dropped after every state write, and a fill
// that raced with a write is discarded.
type StatusCache struct {
	rdb kv
	ttl time.Duration
}

func NewStatusCache(rdb kv, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

// Get reports ok=false on a miss, together with the generation to hand to
// Fill once the order has been read from the store.
func (c *StatusCache) Get(ctx context.Context, orderID string) (orders.Order, bool, string, error) {
	vals, err := c.rdb.MGet(ctx, OrderStatusKey(orderID), OrderStatusGenKey(orderID)).Result()
	if err != nil {
		return orders.Order{}, false, "", errors.Wrap(err, "redis get order status")
	}
	gen, _ := vals[1].(string)
	s, ok := vals[0].(string)
	if !ok {
		return orders.Order{}, false, gen, nil
	}
	var o orders.Order
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		return orders.Order{}, false, gen, errors.Wrap(err, "decode cached order")
	}
	return o, true, gen, nil
}

// Fill caches o unless the order was invalidated after gen was read.
func (c *StatusCache) Fill(ctx context.Context, o orders.Order, gen string) error {
	b, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}
	keys := []string{OrderStatusGenKey(o.OrderID), OrderStatusKey(o.OrderID)}
	err = fillScript.Run(ctx, c.rdb, keys, gen, b, c.ttl.Milliseconds()).Err()
	return errors.Wrap(err, "redis fill order status")
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	genKey := OrderStatusGenKey(orderID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, genKey)
		p.Expire(ctx, genKey, TTLStatusGen)
		p.Del(ctx, OrderStatusKey(orderID))
		return nil
	})
	return errors.Wrap(err, "redis invalidate order status")
}
