package repository

import (
	"context"

	"storesync/internal/domain"
)

// TenantsRepository 店铺Repository接口
// 使用强类型领域模型，不使用map[string]any
// 设计原则：从底层（数据库）向上设计，Repository层只负责数据访问
type TenantsRepository interface {
	// ========== 查询（单个）==========
	// GetTenant 根据tenant_id获取店铺信息
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	// GetTenantByCode 根据店铺代码获取店铺信息
	// 注意：tenant_code有唯一索引，支持此查询
	GetTenantByCode(ctx context.Context, code string) (*domain.Tenant, error)

	// ========== 查询（列表）==========
	// ListTenants 查询店铺列表（支持分页、过滤、搜索）
	// 过滤条件：status（active/suspended/deleted）
	// 搜索条件：tenant_name（模糊匹配）
	ListTenants(ctx context.Context, filter TenantFilters, page, size int) ([]*domain.Tenant, int, error)

	// ListActiveTenants 查询全部参与同步的店铺（调度器每次任务触发时读取）
	ListActiveTenants(ctx context.Context) ([]*domain.Tenant, error)

	// ========== 创建 ==========
	// CreateTenant 创建新店铺
	// 注意：tenant_code唯一性约束由数据库保证
	CreateTenant(ctx context.Context, tenant *domain.Tenant) (string, error)

	// ========== 更新 ==========
	// UpdateTenant 更新店铺信息
	// 注意：tenant_code一旦有订单引用不允许变更，由Service层校验
	UpdateTenant(ctx context.Context, tenantID string, tenant *domain.Tenant) error

	// SetTenantStatus 更新店铺状态（active/suspended/deleted）
	SetTenantStatus(ctx context.Context, tenantID string, status string) error
}

// TenantFilters 店铺查询过滤器
type TenantFilters struct {
	Status string // 可选，按status过滤（active/suspended/deleted）
	Search string // 可选，按tenant_name搜索（模糊匹配）
}
