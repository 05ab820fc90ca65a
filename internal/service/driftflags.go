package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DriftFlagStore 漂移标记存储
// 被标记的店铺等待操作员决定是否重置游标；标记本身是咨询性状态，
// 不影响后续同步运行。
type DriftFlagStore interface {
	FlagDrift(ctx context.Context, tenantID string, note string) error
	ClearDrift(ctx context.Context, tenantID string) error
	GetDrift(ctx context.Context, tenantID string) (bool, string, error)
}

// RedisDriftFlags Redis 实现（进程重启后标记仍在）
type RedisDriftFlags struct {
	client *redis.Client
}

// NewRedisDriftFlags 创建 Redis 漂移标记存储
func NewRedisDriftFlags(client *redis.Client) *RedisDriftFlags {
	return &RedisDriftFlags{client: client}
}

var _ DriftFlagStore = (*RedisDriftFlags)(nil)

const driftFlagTTL = 30 * 24 * time.Hour

func driftKey(tenantID string) string {
	return "storesync:drift:" + tenantID
}

func (s *RedisDriftFlags) FlagDrift(ctx context.Context, tenantID string, note string) error {
	return s.client.Set(ctx, driftKey(tenantID), note, driftFlagTTL).Err()
}

func (s *RedisDriftFlags) ClearDrift(ctx context.Context, tenantID string) error {
	return s.client.Del(ctx, driftKey(tenantID)).Err()
}

func (s *RedisDriftFlags) GetDrift(ctx context.Context, tenantID string) (bool, string, error) {
	note, err := s.client.Get(ctx, driftKey(tenantID)).Result()
	if err == redis.Nil {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, note, nil
}

// MemoryDriftFlags 内存实现（Redis 未启用时的回退）
type MemoryDriftFlags struct {
	mu    sync.RWMutex
	flags map[string]string
}

// NewMemoryDriftFlags 创建内存漂移标记存储
func NewMemoryDriftFlags() *MemoryDriftFlags {
	return &MemoryDriftFlags{flags: map[string]string{}}
}

var _ DriftFlagStore = (*MemoryDriftFlags)(nil)

func (s *MemoryDriftFlags) FlagDrift(_ context.Context, tenantID string, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[tenantID] = note
	return nil
}

func (s *MemoryDriftFlags) ClearDrift(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, tenantID)
	return nil
}

func (s *MemoryDriftFlags) GetDrift(_ context.Context, tenantID string) (bool, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.flags[tenantID]
	return ok, note, nil
}
