package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisclient "storesync/internal/redis"
)

// RunLocker 运行互斥锁
// 调度器内的 in-flight 表已保证单进程互斥，这里是跨进程的第二道防线：
// 同一 (job, tenant) 同时最多一个运行，多实例部署下也成立。
type RunLocker interface {
	// TryAcquire 尝试获取锁；已被占用时返回 false（不阻塞）
	TryAcquire(ctx context.Context, jobType, tenantID string) (bool, error)
	// Release 释放锁
	Release(ctx context.Context, jobType, tenantID string) error
}

const runLockPrefix = "storesync:runlock:"

// RedisRunLocker 基于 Redis SETNX + TTL 的运行锁
type RedisRunLocker struct {
	client *redisclient.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRunLocker 创建 Redis 运行锁
// ttl 应大于单次运行的超时上限，进程崩溃后锁靠 TTL 自然过期。
func NewRedisRunLocker(client *redisclient.Client, ttl time.Duration, logger *zap.Logger) *RedisRunLocker {
	return &RedisRunLocker{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func runLockKey(jobType, tenantID string) string {
	return fmt.Sprintf("%s%s:%s", runLockPrefix, jobType, tenantID)
}

// TryAcquire 尝试获取锁
func (l *RedisRunLocker) TryAcquire(ctx context.Context, jobType, tenantID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, runLockKey(jobType, tenantID), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		l.logger.Debug("Run lock already held",
			zap.String("job_type", jobType),
			zap.String("tenant_id", tenantID),
		)
	}
	return ok, nil
}

// Release 释放锁
func (l *RedisRunLocker) Release(ctx context.Context, jobType, tenantID string) error {
	if err := l.client.Del(ctx, runLockKey(jobType, tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

var _ RunLocker = (*RedisRunLocker)(nil)

// NoopRunLocker 未配置 Redis 时的占位实现（单进程部署仅靠调度器内互斥）
type NoopRunLocker struct{}

func NewNoopRunLocker() *NoopRunLocker {
	return &NoopRunLocker{}
}

func (l *NoopRunLocker) TryAcquire(ctx context.Context, jobType, tenantID string) (bool, error) {
	return true, nil
}

func (l *NoopRunLocker) Release(ctx context.Context, jobType, tenantID string) error {
	return nil
}

var _ RunLocker = (*NoopRunLocker)(nil)
