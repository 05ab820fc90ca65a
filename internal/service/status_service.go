package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/repository"
)

// StatusSyncService 物流状态核对（次级对账循环）
// 对每个店铺的非终态订单，按展示单号向物流服务查询当前状态码，
// 有差异的订单走与新订单完全相同的幂等写入路径。顺带做一次
// 便宜的游标漂移侦测（咨询性，不改游标）。
type StatusSyncService struct {
	cfg        *config.SyncConfig
	delivery   DeliveryStatusProvider
	tenants    repository.TenantsRepository
	runs       repository.RunsRepository
	upserter   *UpsertEngine
	reconciler *CursorReconciler
	orders     repository.OrdersRepository
	factory    StoreClientFactory
	batchLimit int
	clock      Clock
	logger     *zap.Logger
}

// NewStatusSyncService 创建物流状态核对服务
func NewStatusSyncService(
	cfg *config.SyncConfig,
	delivery DeliveryStatusProvider,
	tenants repository.TenantsRepository,
	runs repository.RunsRepository,
	upserter *UpsertEngine,
	reconciler *CursorReconciler,
	orders repository.OrdersRepository,
	factory StoreClientFactory,
	batchLimit int,
	clock Clock,
	logger *zap.Logger,
) *StatusSyncService {
	return &StatusSyncService{
		cfg:        cfg,
		delivery:   delivery,
		tenants:    tenants,
		runs:       runs,
		upserter:   upserter,
		reconciler: reconciler,
		orders:     orders,
		factory:    factory,
		batchLimit: batchLimit,
		clock:      clock,
		logger:     logger,
	}
}

// SyncAllTenants 对全部活跃店铺执行一轮状态核对（店铺间故障隔离）
func (s *StatusSyncService) SyncAllTenants(ctx context.Context) []*domain.SyncRun {
	tenantList, err := s.tenants.ListActiveTenants(ctx)
	if err != nil {
		s.logger.Error("Failed to list active tenants", zap.Error(err))
		return nil
	}

	var runs []*domain.SyncRun
	successCount := 0
	errorCount := 0
	for _, tenant := range tenantList {
		select {
		case <-ctx.Done():
			return runs
		default:
		}

		run := s.SyncTenant(ctx, tenant)
		if run == nil {
			continue
		}
		runs = append(runs, run)
		if run.Outcome == domain.OutcomeFailed || run.Outcome == domain.OutcomeAborted {
			errorCount++
		} else {
			successCount++
		}
	}

	s.logger.Info("Completed status sync batch",
		zap.Int("tenant_count", len(tenantList)),
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
	)
	return runs
}

// SyncTenant 对单个店铺执行一次状态核对运行
func (s *StatusSyncService) SyncTenant(ctx context.Context, tenant *domain.Tenant) *domain.SyncRun {
	run := &domain.SyncRun{
		RunID:     uuid.NewString(),
		JobType:   domain.JobStatusSync,
		TenantID:  tenant.TenantID,
		StartedAt: s.clock.Now(),
		Outcome:   domain.OutcomeRunning,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Error("Failed to create status sync run",
			zap.String("tenant_code", tenant.TenantCode),
			zap.Error(err),
		)
		return nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.RunTimeoutSecs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RunTimeoutSecs)*time.Second)
		defer cancel()
	}

	err := s.runTenant(runCtx, tenant, run)
	switch {
	case err == nil:
		if len(run.ErrorSummary) > 0 {
			run.Outcome = domain.OutcomePartial
		} else {
			run.Outcome = domain.OutcomeSuccess
		}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		run.Outcome = domain.OutcomeAborted
		run.AddError(err.Error())
	default:
		run.Outcome = domain.OutcomeFailed
		run.AddError(err.Error())
	}

	now := s.clock.Now()
	run.FinishedAt = &now
	finalizeCtx, cancelFinalize := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFinalize()
	if err := s.runs.FinalizeRun(finalizeCtx, run); err != nil {
		s.logger.Error("Failed to finalize status sync run",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
	}

	s.logger.Info("Status sync run finished",
		zap.String("tenant_code", tenant.TenantCode),
		zap.String("run_id", run.RunID),
		zap.String("outcome", string(run.Outcome)),
		zap.Int("fetched", run.Counters.Fetched),
		zap.Int("status_changed", run.Counters.StatusChanged),
	)

	return run
}

func (s *StatusSyncService) runTenant(ctx context.Context, tenant *domain.Tenant, run *domain.SyncRun) error {
	if tenant.DeliveryCredentialKey == "" {
		run.AddError("tenant has no delivery credential key, skipping delivery reconciliation")
		return nil
	}

	open, err := s.orders.ListOpenOrders(ctx, tenant.TenantID, s.batchLimit)
	if err != nil {
		return fmt.Errorf("failed to list open orders: %w", err)
	}

	for _, order := range open {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if order.ExternalRef == "" {
			run.Counters.Skipped++
			continue
		}

		code, err := s.delivery.QueryByReference(ctx, tenant.DeliveryCredentialKey, order.ExternalRef)
		if err != nil {
			// 限流：本店铺暂停，等下次调度，绝不紧密重试
			var rateLimited *RateLimitError
			if errors.As(err, &rateLimited) {
				run.AddError(fmt.Sprintf("delivery API rate limited after %d orders, pausing", run.Counters.Fetched))
				return nil
			}
			return err
		}
		run.Counters.Fetched++

		if code == 0 {
			run.Counters.Skipped++
			continue
		}

		label := DeliveryStatusLabel(code)
		mapped, _ := domain.MapExternalStatus(label)
		if mapped == order.Status {
			continue
		}

		// 状态变化走与新订单完全相同的幂等写入路径
		raw := &domain.RawOrder{
			ExternalID:    order.ExternalID,
			Reference:     order.ExternalRef,
			StatusLabel:   label,
			CustomerName:  order.CustomerName,
			CustomerPhone: order.CustomerPhone,
			Total:         float64(order.TotalCents) / 100,
			Items:         order.Items,
			CreatedAt:     order.ExternalCreatedAt.UnixMilli(),
		}
		if err := s.upserter.Apply(ctx, tenant, raw, run); err != nil {
			return err
		}
	}

	// 顺带的漂移侦测：一次最新页抓取，咨询性，不改游标
	client := s.factory(tenant, s.logger)
	if err := s.reconciler.CheckDrift(ctx, tenant, client); err != nil {
		if errors.Is(err, ErrDriftDetected) {
			run.AddError(err.Error())
			return nil
		}
		// 漂移侦测失败不拖垮状态核对本身
		run.AddError(fmt.Sprintf("drift check failed: %v", err))
	}

	return nil
}
