package cache

import (
	"context"
	"testing"
	"time"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/safar/go-sql-shop/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*StatusCache, func(string) time.Duration) {
	t.Helper()
	rdb := NewRedisClient(testutil.SetupRedis(t))
	t.Cleanup(func() { rdb.Close() })

	ttlOf := func(k string) time.Duration {
		ttl, err := rdb.TTL(context.Background(), k).Result()
		require.NoError(t, err)
		return ttl
	}
	return NewStatusCache(rdb, time.Minute), ttlOf
}

func statusAt(id, userID int64, status models.OrderStatus, version int) *models.Order {
	return &models.Order{
		ID:        id,
		UserID:    userID,
		Status:    status,
		Version:   version,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, version, 0, time.UTC),
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *StatusCache
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, &models.Order{ID: 1}))
	_, ok, err := c.Get(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, 1))
}

func TestStatusCacheRoundTrip(t *testing.T) {
	c, ttlOf := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, statusAt(10, 4, models.OrderStatusConfirmed, 2)))

	entry, ok, err := c.Get(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4), entry.UserID)
	assert.Equal(t, models.OrderStatusConfirmed, entry.Status)
	assert.Equal(t, 2, entry.Version)
	assert.True(t, entry.UpdatedAt.Equal(statusAt(10, 4, "", 2).UpdatedAt))
	assert.Greater(t, ttlOf("order_status:10"), time.Duration(0))
}

func TestStatusCacheKeepsNewestVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// The later transition lands first; the earlier one arrives late.
	require.NoError(t, c.Set(ctx, statusAt(20, 4, models.OrderStatusShipping, 3)))
	require.NoError(t, c.Set(ctx, statusAt(20, 4, models.OrderStatusConfirmed, 2)))

	entry, ok, err := c.Get(ctx, 20)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusShipping, entry.Status)
	assert.Equal(t, 3, entry.Version)

	// Same version is a repeat, not an update.
	require.NoError(t, c.Set(ctx, statusAt(20, 4, models.OrderStatusDelivered, 3)))
	entry, _, err = c.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipping, entry.Status)

	require.NoError(t, c.Set(ctx, statusAt(20, 4, models.OrderStatusDelivered, 4)))
	entry, _, err = c.Get(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, entry.Status)
}

func TestStatusCacheDeleteBlocksLateWrites(t *testing.T) {
	c, ttlOf := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, statusAt(30, 4, models.OrderStatusCancelled, 2)))
	require.NoError(t, c.Delete(ctx, 30))

	_, ok, err := c.Get(ctx, 30)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, ttlOf("order_status:30"), time.Duration(0))

	// A reader that loaded the row before the delete must not revive it.
	require.NoError(t, c.Set(ctx, statusAt(30, 4, models.OrderStatusCancelled, 2)))
	_, ok, err = c.Get(ctx, 30)
	require.NoError(t, err)
	assert.False(t, ok)
}
