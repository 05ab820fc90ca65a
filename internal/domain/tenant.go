package domain

import "encoding/json"

// Tenant 店铺领域模型（对应 tenants 表）
// 每个店铺是一个独立配置的上游订单系统：自己的凭证、自己的外部订单号空间。
// 外部订单号只在店铺内唯一，绝不能跨店铺比较。
type Tenant struct {
	// 主键
	TenantID string `db:"tenant_id"` // UUID, PRIMARY KEY

	// 基本信息
	TenantCode string `db:"tenant_code"` // VARCHAR(50), UNIQUE, 短店铺代码；一旦有订单引用不可变更
	TenantName string `db:"tenant_name"` // VARCHAR(255), NOT NULL

	// 上游订单 API
	APIBaseURL string `db:"api_base_url"` // 上游订单系统地址
	APIToken   string `db:"api_token"`    // Bearer 凭证
	PageSize   int    `db:"page_size"`    // 上游允许的最大页大小（0 = 使用默认值）

	// 物流状态服务凭证选择（可选，见 DeliveryConfig.Credentials）
	DeliveryCredentialKey string `db:"delivery_credential_key"`

	// 状态
	Status string `db:"status"` // VARCHAR(50), DEFAULT 'active' (active/suspended/deleted)

	// 扩展配置
	Metadata json.RawMessage `db:"metadata"` // JSONB, nullable
}

// IsActive 店铺是否参与同步
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// 店铺状态
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)
