package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// OrderStatus 内部订单状态枚举
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusDispatched OrderStatus = "dispatched"
	StatusDelivered  OrderStatus = "delivered"
	StatusReturned   OrderStatus = "returned"
	StatusCancelled  OrderStatus = "cancelled"
	// StatusUnknown 未识别的上游状态映射到该哨兵值（绝不因未知状态报错）
	StatusUnknown OrderStatus = "unknown"
)

// externalStatusTable 上游状态文案 -> 内部状态的固定映射表
// 上游各家的状态词汇不一致，这里统一收敛；找不到的一律映射为 StatusUnknown。
var externalStatusTable = map[string]OrderStatus{
	"pending":          StatusPending,
	"pendiente":        StatusPending,
	"new":              StatusPending,
	"confirmed":        StatusConfirmed,
	"confirmado":       StatusConfirmed,
	"preparing":        StatusConfirmed,
	"dispatched":       StatusDispatched,
	"shipped":          StatusDispatched,
	"guia_generada":    StatusDispatched,
	"en_ruta":          StatusDispatched,
	"delivered":        StatusDelivered,
	"entregado":        StatusDelivered,
	"returned":         StatusReturned,
	"devolucion":       StatusReturned,
	"cancelled":        StatusCancelled,
	"canceled":         StatusCancelled,
	"cancelado":        StatusCancelled,
	"rechazado":        StatusCancelled,
}

// MapExternalStatus 将上游状态文案映射为内部状态
// 返回 (状态, 是否命中映射表)；未命中时返回 StatusUnknown，由调用方计数上报。
func MapExternalStatus(label string) (OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, " ", "_")
	if st, ok := externalStatusTable[key]; ok {
		return st, true
	}
	return StatusUnknown, false
}

// IsTerminal 终态订单不再参与物流状态核对
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// Order 订单领域模型（对应 orders 表）
// 唯一约束是 (tenant_id, external_id) —— 绝不是 external_id 单独：
// 两个店铺完全可能产生同一个外部订单号。
type Order struct {
	// 主键
	OrderID string `db:"order_id"` // UUID, PRIMARY KEY

	// 归属
	TenantID   string `db:"tenant_id"`   // UUID, NOT NULL
	ExternalID string `db:"external_id"` // 上游订单号（不透明字符串，店铺内唯一）

	// 订单内容
	ExternalRef   string          `db:"external_ref"` // 展示用单号（物流核对按此查询）
	Status        OrderStatus     `db:"status"`
	TotalCents    int64           `db:"total_cents"`
	CustomerName  string          `db:"customer_name"`
	CustomerPhone string          `db:"customer_phone"`
	Items         json.RawMessage `db:"items"` // JSONB 行项目

	// 标记位（同步引擎只标记不删除）
	Flagged bool `db:"flagged"`

	// 时间
	ExternalCreatedAt time.Time `db:"external_created_at"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// RawOrder 上游订单 API 的原始记录（窄结构，在客户端边界完成校验）
// 不让未定型的外部数据越过客户端层。
type RawOrder struct {
	ExternalID    string          `json:"id"`
	Reference     string          `json:"reference"`
	StatusLabel   string          `json:"status"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Total         float64         `json:"total"`
	Items         json.RawMessage `json:"items"`
	CreatedAt     int64           `json:"created_at"` // Unix 毫秒
}

// TotalCents 金额统一按分存储，避免浮点误差扩散
func (r *RawOrder) TotalCents() int64 {
	return int64(r.Total*100 + 0.5)
}

// CreatedTime 上游创建时间
func (r *RawOrder) CreatedTime() time.Time {
	if r.CreatedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.CreatedAt)
}
