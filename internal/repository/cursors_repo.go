package repository

import (
	"context"
	"time"

	"storesync/internal/domain"
)

// CursorsRepository 同步游标Repository接口
// 游标行是整个引擎唯一的争用资源。调度器的互斥保证使并发写者
// 不会出现；这里的 CAS 写入只是纵深防御，不是主要安全机制。
type CursorsRepository interface {
	// GetCursor 读取 (店铺, 任务类型) 的游标；不存在时返回 (nil, nil)
	GetCursor(ctx context.Context, tenantID string, jobType domain.SyncJobType) (*domain.SyncCursor, error)

	// CreateCursor 创建游标行（首次同步）
	CreateCursor(ctx context.Context, cursor *domain.SyncCursor) error

	// UpdateCursorCAS 条件更新：仅当 updated_at 仍等于 prevUpdatedAt 时写入
	// 返回 false 表示 CAS 未命中（有并发写者，调用方应放弃本次推进）
	// 单调性（数值核不减）由 Reconciler 在读取后、写入前校验。
	UpdateCursorCAS(ctx context.Context, tenantID string, jobType domain.SyncJobType, newLast string, prevUpdatedAt time.Time) (bool, error)

	// ResetCursor 显式回退/重置游标（漂移修复的唯一途径，无条件写入）
	ResetCursor(ctx context.Context, tenantID string, jobType domain.SyncJobType, value string) error
}
