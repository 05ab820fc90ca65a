package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisRunLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRunLocker(client, ttl, zap.NewNop()), mr
}

func TestRedisRunLocker_MutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	// 同一 (job, tenant) 第二次获取失败
	ok, err = locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.False(t, ok)

	// 不同店铺、不同任务互不影响
	ok, err = locker.TryAcquire(ctx, "new_orders", "t2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = locker.TryAcquire(ctx, "status_sync", "t1")
	require.NoError(t, err)
	assert.True(t, ok)

	// 释放后可再次获取
	require.NoError(t, locker.Release(ctx, "new_orders", "t1"))
	ok, err = locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRunLocker_LockExpiresAfterTTL(t *testing.T) {
	// 进程崩溃不释放锁：靠 TTL 自然过期，不会永久卡死
	locker, mr := newTestLocker(t, 30*time.Second)
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(31 * time.Second)

	ok, err = locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNoopRunLocker_AlwaysAcquires(t *testing.T) {
	locker := NewNoopRunLocker()
	ctx := context.Background()

	ok, err := locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = locker.TryAcquire(ctx, "new_orders", "t1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, locker.Release(ctx, "new_orders", "t1"))
}
