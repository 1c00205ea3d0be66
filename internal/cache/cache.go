// Package cache keeps the latest committed status of each order in Redis so
// status polling does not hit Postgres. The database stays authoritative.
// Every entry carries the order row's version and a write only lands when it
// is newer than what is cached, so out-of-order writers cannot roll a status
// back. Deleted orders leave a tombstone that blocks late writes until it
// expires.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-sql-shop/internal/models"
)

const keyOrderStatus = "order_status:%d"

// KEYS[1] entry; ARGV version, user_id, status, updated_at, ttl ms.
var setIfNewer = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'deleted') == 1 then
	return 0
end
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'user_id', ARGV[2], 'status', ARGV[3], 'updated_at', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// KEYS[1] entry; ARGV ttl ms.
var tombstone = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'deleted', '1')
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return 1
`)

type StatusEntry struct {
	UserID    int64              `json:"user_id"`
	Status    models.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at"`
	Version   int                `json:"version"`
}

// StatusCache is safe to use as a nil pointer; every method is then a no-op
// miss.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func NewStatusCache(rdb redis.Cmdable, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

// Set stores the order's status unless the cache already holds the same or a
// newer version, or the order was deleted.
func (c *StatusCache) Set(ctx context.Context, order *models.Order) error {
	if c == nil {
		return nil
	}

	err := setIfNewer.Run(ctx, c.rdb, []string{key(order.ID)},
		order.Version,
		order.UserID,
		string(order.Status),
		order.UpdatedAt.UTC().Format(time.RFC3339Nano),
		c.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("cache status: %w", err)
	}
	return nil
}

// Get returns the cached entry. ok is false on a miss and for deleted orders.
func (c *StatusCache) Get(ctx context.Context, orderID int64) (entry StatusEntry, ok bool, err error) {
	if c == nil {
		return entry, false, nil
	}

	fields, err := c.rdb.HGetAll(ctx, key(orderID)).Result()
	if err != nil {
		return entry, false, fmt.Errorf("read cached status: %w", err)
	}
	if len(fields) == 0 || fields["deleted"] != "" {
		return entry, false, nil
	}

	if entry.UserID, err = strconv.ParseInt(fields["user_id"], 10, 64); err != nil {
		return entry, false, fmt.Errorf("decode cached user: %w", err)
	}
	if entry.Version, err = strconv.Atoi(fields["version"]); err != nil {
		return entry, false, fmt.Errorf("decode cached version: %w", err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return entry, false, fmt.Errorf("decode cached timestamp: %w", err)
	}
	entry.Status = models.OrderStatus(fields["status"])
	return entry, true, nil
}

// Delete replaces the entry with a tombstone for one TTL.
func (c *StatusCache) Delete(ctx context.Context, orderID int64) error {
	if c == nil {
		return nil
	}

	if err := tombstone.Run(ctx, c.rdb, []string{key(orderID)}, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("evict status: %w", err)
	}
	return nil
}

func key(orderID int64) string {
	return fmt.Sprintf(keyOrderStatus, orderID)
}
