package repository

import (
	"context"
	"time"

	"storesync/internal/domain"
)

// RunFilters 运行历史查询过滤器
type RunFilters struct {
	JobType  string // 可选，按任务类型过滤
	TenantID string // 可选，按店铺过滤
	Outcome  string // 可选，按结果过滤
}

// RunsRepository 运行记录Repository接口
// SyncRun 在任务开始时创建（outcome=running），结束时敲定一次，
// 之后不可变；控制面按它提供运行历史与卡死检测。
type RunsRepository interface {
	// CreateRun 任务开始：写入 running 状态的运行记录
	CreateRun(ctx context.Context, run *domain.SyncRun) error

	// FinalizeRun 任务结束：写入结果、计数器与错误摘要
	// 只允许敲定 outcome=running 的行，重复敲定是缺陷。
	FinalizeRun(ctx context.Context, run *domain.SyncRun) error

	// GetRun 读取单条运行记录
	GetRun(ctx context.Context, runID string) (*domain.SyncRun, error)

	// ListRuns 运行历史（started_at 降序，分页）
	ListRuns(ctx context.Context, filter RunFilters, page, size int) ([]*domain.SyncRun, int, error)

	// DeleteRunsBefore 清理任务：删除早于 cutoff 的已敲定运行记录
	// running 状态的行不删（卡死检测需要它们可见）
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
