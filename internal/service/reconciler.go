package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
)

// CursorReconciler 高水位游标维护与漂移侦测
// 游标只在成功批次之后推进；推进是单调的（数值核不减），唯一的
// 回退途径是显式 Reset。漂移侦测是咨询性的：发现本地最大订单号
// 超过上游实际最大值时标记店铺，默认不替操作员做回退决定。
type CursorReconciler struct {
	cursors   repository.CursorsRepository
	orders    repository.OrdersRepository
	flags     DriftFlagStore
	autoReset bool
	logger    *zap.Logger
}

// NewCursorReconciler 创建游标维护器
func NewCursorReconciler(cursors repository.CursorsRepository, orders repository.OrdersRepository, flags DriftFlagStore, autoReset bool, logger *zap.Logger) *CursorReconciler {
	return &CursorReconciler{
		cursors:   cursors,
		orders:    orders,
		flags:     flags,
		autoReset: autoReset,
		logger:    logger,
	}
}

// Advance 推进 (店铺, 任务) 的游标到 newMax
// newMax 为空或不大于当前值时是空操作。CAS 未命中说明出现了按构造
// 不该存在的并发写者，此时放弃推进并报错（宁可下次重扫也不覆盖）。
func (r *CursorReconciler) Advance(ctx context.Context, tenantID string, jobType domain.SyncJobType, newMax string) error {
	if newMax == "" {
		return nil
	}

	cursor, err := r.cursors.GetCursor(ctx, tenantID, jobType)
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}

	if cursor == nil {
		if err := r.cursors.CreateCursor(ctx, &domain.SyncCursor{
			TenantID:       tenantID,
			JobType:        jobType,
			LastExternalID: newMax,
		}); err != nil {
			return fmt.Errorf("failed to create cursor: %w", err)
		}
		r.logger.Info("Cursor created",
			zap.String("tenant_id", tenantID),
			zap.String("job_type", string(jobType)),
			zap.String("last_external_id", newMax),
		)
		return nil
	}

	// 单调性：数值核不减
	if domain.CompareExternalIDs(newMax, cursor.LastExternalID) <= 0 {
		return nil
	}

	ok, err := r.cursors.UpdateCursorCAS(ctx, tenantID, jobType, newMax, cursor.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	if !ok {
		return fmt.Errorf("cursor concurrently modified (tenant=%s, job=%s), advance abandoned", tenantID, jobType)
	}

	r.logger.Info("Cursor advanced",
		zap.String("tenant_id", tenantID),
		zap.String("job_type", string(jobType)),
		zap.String("from", cursor.LastExternalID),
		zap.String("to", newMax),
	)
	return nil
}

// Reset 显式重置游标（操作员操作，或漂移自动修复）
// 同时清除该店铺的漂移标记。
func (r *CursorReconciler) Reset(ctx context.Context, tenantID string, jobType domain.SyncJobType, value string) error {
	if err := r.cursors.ResetCursor(ctx, tenantID, jobType, value); err != nil {
		return err
	}
	if err := r.flags.ClearDrift(ctx, tenantID); err != nil {
		r.logger.Warn("Failed to clear drift flag after reset",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	r.logger.Info("Cursor reset",
		zap.String("tenant_id", tenantID),
		zap.String("job_type", string(jobType)),
		zap.String("value", value),
	)
	return nil
}

// CheckDrift 漂移侦测：本地最大订单号 vs 上游实际最大值
// 一次最新页抓取即可（便宜），不在每次同步中运行。发现漂移时标记店铺
// 并返回 ErrDriftDetected；配置了自动修复时把游标回退到上游最大值。
func (r *CursorReconciler) CheckDrift(ctx context.Context, tenant *domain.Tenant, client StoreOrderClient) error {
	page, err := client.FetchOrdersPage(ctx, 1, 1)
	if err != nil {
		return fmt.Errorf("failed to fetch upstream max: %w", err)
	}
	if page == nil || len(page.Orders) == 0 {
		// 上游没有任何订单：本地有订单即为漂移
		localMax, err := r.orders.MaxExternalID(ctx, tenant.TenantID)
		if err != nil {
			return err
		}
		if localMax == "" {
			return nil
		}
		return r.flagDrift(ctx, tenant, localMax, "")
	}

	upstreamMax := page.Orders[0].ExternalID
	localMax, err := r.orders.MaxExternalID(ctx, tenant.TenantID)
	if err != nil {
		return err
	}
	if localMax == "" || domain.CompareExternalIDs(localMax, upstreamMax) <= 0 {
		return nil
	}
	return r.flagDrift(ctx, tenant, localMax, upstreamMax)
}

func (r *CursorReconciler) flagDrift(ctx context.Context, tenant *domain.Tenant, localMax, upstreamMax string) error {
	note := fmt.Sprintf("local max %s exceeds upstream max %s", localMax, upstreamMax)
	if err := r.flags.FlagDrift(ctx, tenant.TenantID, note); err != nil {
		r.logger.Error("Failed to store drift flag",
			zap.String("tenant_code", tenant.TenantCode),
			zap.Error(err),
		)
	}
	r.logger.Warn("Cursor drift detected",
		zap.String("tenant_code", tenant.TenantCode),
		zap.String("local_max", localMax),
		zap.String("upstream_max", upstreamMax),
		zap.Bool("auto_reset", r.autoReset),
	)

	if r.autoReset {
		if err := r.Reset(ctx, tenant.TenantID, domain.JobNewOrders, upstreamMax); err != nil {
			return fmt.Errorf("drift auto-reset failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w (tenant=%s): %s", ErrDriftDetected, tenant.TenantCode, note)
}
