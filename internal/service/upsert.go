package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
)

// UpsertEngine 幂等写入引擎
// 把一条上游原始记录落为本地订单：同一条记录重复应用（串行或并发）
// 只产生一行、不丢更新。新订单与回扫发现的状态变化走同一条路径，
// 不做特殊分支。
//
// 调度器的互斥已保证同店铺不会有并发运行；这里的幂等性是纵深防御。
type UpsertEngine struct {
	orders repository.OrdersRepository
	logger *zap.Logger
}

// NewUpsertEngine 创建幂等写入引擎
func NewUpsertEngine(orders repository.OrdersRepository, logger *zap.Logger) *UpsertEngine {
	return &UpsertEngine{orders: orders, logger: logger}
}

// Apply 应用一条上游记录，更新运行计数器
func (e *UpsertEngine) Apply(ctx context.Context, tenant *domain.Tenant, raw *domain.RawOrder, run *domain.SyncRun) error {
	// 状态映射：未识别的上游状态映射为哨兵值并记入摘要，绝不报错
	status, known := domain.MapExternalStatus(raw.StatusLabel)
	if !known {
		run.AddError(fmt.Sprintf("unknown status %q for order %s, mapped to %s", raw.StatusLabel, raw.ExternalID, status))
		e.logger.Warn("Unknown external status, mapping to sentinel",
			zap.String("tenant_code", tenant.TenantCode),
			zap.String("external_id", raw.ExternalID),
			zap.String("status_label", raw.StatusLabel),
		)
	}

	// 身份解析：永远按 (tenant_id, external_id) 复合键；
	// 多行命中是历史脏数据，确定性取最新一行并上报歧义。
	resolved, err := e.orders.ResolveOrder(ctx, tenant.TenantID, raw.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to resolve order identity: %w", err)
	}
	if resolved.Matches > 1 {
		run.AddError(fmt.Sprintf("identity ambiguity: %d rows match (tenant=%s, external_id=%s), using newest", resolved.Matches, tenant.TenantCode, raw.ExternalID))
	}

	order := &domain.Order{
		OrderID:           uuid.NewString(), // 冲突时数据库保留已有行的主键
		TenantID:          tenant.TenantID,
		ExternalID:        raw.ExternalID,
		ExternalRef:       raw.Reference,
		Status:            status,
		TotalCents:        raw.TotalCents(),
		CustomerName:      raw.CustomerName,
		CustomerPhone:     raw.CustomerPhone,
		Items:             raw.Items,
		ExternalCreatedAt: raw.CreatedTime(),
	}

	result, err := e.orders.UpsertOrder(ctx, order)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}

	if result.Created {
		run.Counters.Created++
	} else {
		run.Counters.Updated++
		if result.StatusChanged {
			run.Counters.StatusChanged++
			e.logger.Info("Order status transition",
				zap.String("tenant_code", tenant.TenantCode),
				zap.String("external_id", raw.ExternalID),
				zap.String("prev_status", string(result.PrevStatus)),
				zap.String("new_status", string(status)),
			)
		}
	}

	return nil
}
