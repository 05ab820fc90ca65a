package repository

import (
	"context"

	"storesync/internal/domain"
)

// UpsertResult 一次幂等写入的结果（供运行计数器使用）
type UpsertResult struct {
	Created       bool               // true=新建；false=更新已有行
	StatusChanged bool               // 更新时状态是否发生变化
	PrevStatus    domain.OrderStatus // 更新前的状态（Created=true 时为空）
}

// ResolveResult 身份解析结果
// Matches > 1 表示同一 (tenant_id, external_id) 下存在历史脏数据；
// 解析是确定性的（取 created_at 最新的一行），歧义由调用方记入运行摘要。
type ResolveResult struct {
	Order   *domain.Order
	Matches int
}

// OrdersRepository 订单Repository接口
// 所有查询必须同时按 tenant_id + external_id 过滤：
// 只按 external_id 查询是这一层存在要防止的缺陷类型。
type OrdersRepository interface {
	// ResolveOrder 解析 (店铺, 外部订单号) 对应的本地订单身份
	// 未找到时返回 (nil, 0, nil)；多行命中时确定性地取最新一行并报告 Matches。
	ResolveOrder(ctx context.Context, tenantID, externalID string) (*ResolveResult, error)

	// UpsertOrder 幂等写入：同一条记录重复应用（串行或并发）只产生一行、
	// 不丢更新。实现依赖 UNIQUE (tenant_id, external_id) + ON CONFLICT。
	UpsertOrder(ctx context.Context, order *domain.Order) (*UpsertResult, error)

	// GetOrder 按内部身份读取
	GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error)

	// ListRecentExternalIDs 最近同步的 N 个外部订单号（数值核降序）
	// 回扫窗口按它确定
	ListRecentExternalIDs(ctx context.Context, tenantID string, limit int) ([]string, error)

	// ListOpenOrders 非终态订单（物流状态核对的候选集）
	ListOpenOrders(ctx context.Context, tenantID string, limit int) ([]*domain.Order, error)

	// MaxExternalID 本地最大外部订单号（数值核最大；无订单时返回 ""）
	MaxExternalID(ctx context.Context, tenantID string) (string, error)

	// FlagOrder 标记订单（同步引擎只标记不删除）
	FlagOrder(ctx context.Context, tenantID, orderID string, flagged bool) error
}
