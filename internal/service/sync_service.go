package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/repository"
)

// SyncService 混合同步算法（每店铺每次运行的状态机）
//
//	FETCH_NEW → SCAN_DRIFT（可选）→ UPSERT → ADVANCE_CURSOR → DONE
//
// 任一状态可进入 FAILED。关键正确性来自 SCAN_DRIFT：订单的外部状态
// 可能在更新的订单已经出现之后才变化，纯 "id > 游标" 的前向扫描会
// 永远漏掉它；回扫窗口补上这一类。
type SyncService struct {
	cfg        *config.SyncConfig
	tenants    repository.TenantsRepository
	runs       repository.RunsRepository
	cursors    repository.CursorsRepository
	orders     repository.OrdersRepository
	upserter   *UpsertEngine
	reconciler *CursorReconciler
	factory    StoreClientFactory
	clock      Clock
	logger     *zap.Logger
}

// NewSyncService 创建同步服务
func NewSyncService(
	cfg *config.SyncConfig,
	tenants repository.TenantsRepository,
	runs repository.RunsRepository,
	cursors repository.CursorsRepository,
	orders repository.OrdersRepository,
	upserter *UpsertEngine,
	reconciler *CursorReconciler,
	factory StoreClientFactory,
	clock Clock,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		cfg:        cfg,
		tenants:    tenants,
		runs:       runs,
		cursors:    cursors,
		orders:     orders,
		upserter:   upserter,
		reconciler: reconciler,
		factory:    factory,
		clock:      clock,
		logger:     logger,
	}
}

// SyncAllTenants 对全部活跃店铺执行一轮新订单同步
// 店铺之间用小常数的有界并发（重叠各自的网络等待），店铺内部串行。
// 店铺级失败相互隔离：单店铺 FAILED 不影响同批次其他店铺。
func (s *SyncService) SyncAllTenants(ctx context.Context) []*domain.SyncRun {
	tenantList, err := s.tenants.ListActiveTenants(ctx)
	if err != nil {
		s.logger.Error("Failed to list active tenants", zap.Error(err))
		return nil
	}

	workers := s.cfg.TenantWorkers
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		runs []*domain.SyncRun
		wg   sync.WaitGroup
		sem  = make(chan struct{}, workers)
	)

	for _, tenant := range tenantList {
		select {
		case <-ctx.Done():
			s.logger.Warn("Sync batch cancelled", zap.Error(ctx.Err()))
			wg.Wait()
			return runs
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(t *domain.Tenant) {
			defer wg.Done()
			defer func() { <-sem }()

			run := s.SyncTenant(ctx, t)
			if run != nil {
				mu.Lock()
				runs = append(runs, run)
				mu.Unlock()
			}
		}(tenant)
	}
	wg.Wait()

	successCount := 0
	errorCount := 0
	for _, run := range runs {
		if run.Outcome == domain.OutcomeSuccess || run.Outcome == domain.OutcomePartial {
			successCount++
		} else {
			errorCount++
		}
	}
	s.logger.Info("Completed sync batch",
		zap.Int("tenant_count", len(tenantList)),
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
	)

	return runs
}

// SyncTenant 对单个店铺执行一次新订单同步运行
// 总是返回已敲定的 SyncRun（创建运行记录本身失败时返回 nil）。
func (s *SyncService) SyncTenant(ctx context.Context, tenant *domain.Tenant) *domain.SyncRun {
	run := &domain.SyncRun{
		RunID:     uuid.NewString(),
		JobType:   domain.JobNewOrders,
		TenantID:  tenant.TenantID,
		StartedAt: s.clock.Now(),
		Outcome:   domain.OutcomeRunning,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.Error("Failed to create sync run",
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
		// 超时/停机中止：游标保持不动，部分进度不提交
		run.Outcome = domain.OutcomeAborted
		run.AddError(err.Error())
	default:
		run.Outcome = domain.OutcomeFailed
		run.AddError(err.Error())
	}

	s.finalizeRun(run)

	s.logger.Info("Sync run finished",
		zap.String("tenant_code", tenant.TenantCode),
		zap.String("run_id", run.RunID),
		zap.String("outcome", string(run.Outcome)),
		zap.Int("fetched", run.Counters.Fetched),
		zap.Int("created", run.Counters.Created),
		zap.Int("updated", run.Counters.Updated),
		zap.Int("status_changed", run.Counters.StatusChanged),
		zap.Int("skipped", run.Counters.Skipped),
	)

	return run
}

// runTenant 状态机主体
func (s *SyncService) runTenant(ctx context.Context, tenant *domain.Tenant, run *domain.SyncRun) error {
	client := s.factory(tenant, s.logger)
	fetcher := NewPagedFetcher(
		tenant,
		client,
		s.clock,
		time.Duration(s.cfg.MinRequestDelayMs)*time.Millisecond,
		s.cfg.MaxPagesPerRun,
		s.cfg.DefaultPageSize,
		s.logger,
	)

	cursor, err := s.cursors.GetCursor(ctx, tenant.TenantID, domain.JobNewOrders)
	if err != nil {
		return fmt.Errorf("failed to read cursor: %w", err)
	}
	cursorID := ""
	if cursor != nil {
		cursorID = cursor.LastExternalID
	}

	// FETCH_NEW：从新到旧分页，收集严格大于游标的订单；
	// 页内出现 ≤ 游标的订单号即停止向更旧翻页。
	newOrders, boundary, err := s.fetchNew(ctx, fetcher, cursorID, run)
	if err != nil {
		return err
	}

	// SCAN_DRIFT：沿着 FETCH_NEW 停下的边界继续翻页，覆盖最近
	// 已同步的一段订单号窗口，捕捉 "id 不新但状态变了" 的订单。
	var drift []domain.RawOrder
	if s.cfg.DriftScanEnabled {
		drift, err = s.scanDrift(ctx, fetcher, tenant, cursorID, boundary, run)
		if err != nil {
			return err
		}
	}

	// UPSERT：候选集内按 (tenant, external_id) 去重，每条恰好应用一次。
	// 新订单与回扫订单走同一条写入路径。
	seen := map[string]bool{}
	var newMax string
	for i := range newOrders {
		raw := &newOrders[i]
		if seen[raw.ExternalID] {
			run.Counters.Skipped++
			continue
		}
		seen[raw.ExternalID] = true
		if err := s.upserter.Apply(ctx, tenant, raw, run); err != nil {
			return err
		}
		if newMax == "" || domain.CompareExternalIDs(raw.ExternalID, newMax) > 0 {
			newMax = raw.ExternalID
		}
	}
	for i := range drift {
		raw := &drift[i]
		if seen[raw.ExternalID] {
			run.Counters.Skipped++
			continue
		}
		seen[raw.ExternalID] = true
		if err := s.upserter.Apply(ctx, tenant, raw, run); err != nil {
			return err
		}
	}

	// ADVANCE_CURSOR：只看新订单的最大值；回扫订单按定义比游标旧，
	// 不参与推进。
	if err := s.reconciler.Advance(ctx, tenant.TenantID, domain.JobNewOrders, newMax); err != nil {
		return err
	}

	return nil
}

// fetchNew 前向扫描
// 返回新订单候选集，以及停止页中已见到的 ≤ 游标的记录（回扫窗口的起点）。
func (s *SyncService) fetchNew(ctx context.Context, fetcher *PagedFetcher, cursorID string, run *domain.SyncRun) (newOrders, boundary []domain.RawOrder, err error) {
	for {
		page, err := fetcher.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		if page == nil {
			return newOrders, boundary, nil
		}

		run.Counters.Fetched += len(page.Orders)
		run.Counters.Skipped += page.Dropped

		reachedCursor := false
		for _, raw := range page.Orders {
			if cursorID == "" || domain.CompareExternalIDs(raw.ExternalID, cursorID) > 0 {
				newOrders = append(newOrders, raw)
			} else {
				reachedCursor = true
				boundary = append(boundary, raw)
			}
		}
		if reachedCursor {
			// 本页已跨过游标，更旧的页不可能再有新订单
			return newOrders, boundary, nil
		}
	}
}

// scanDrift 回扫
// 继续向更旧的方向翻页，直到覆盖配置的窗口大小、耗尽回扫调用预算
// 或上游没有更多页。只有状态与本地不一致（或本地缺失）的记录才成为
// 候选；窗口不会扫到订单号数值核 1 以下。
func (s *SyncService) scanDrift(ctx context.Context, fetcher *PagedFetcher, tenant *domain.Tenant, cursorID string, boundary []domain.RawOrder, run *domain.SyncRun) ([]domain.RawOrder, error) {
	var candidates []domain.RawOrder
	examined := 0
	scanCalls := 0

	appendCandidate := func(raw domain.RawOrder) error {
		num, ok := domain.ExternalIDNumber(raw.ExternalID)
		if !ok || num < 1 {
			return nil
		}
		examined++

		resolved, err := s.orders.ResolveOrder(ctx, tenant.TenantID, raw.ExternalID)
		if err != nil {
			return err
		}
		if resolved.Order == nil {
			// 本地缺失：此前被漏掉的订单，照常收入候选
			candidates = append(candidates, raw)
			return nil
		}
		mapped, _ := domain.MapExternalStatus(raw.StatusLabel)
		if mapped != resolved.Order.Status {
			candidates = append(candidates, raw)
		}
		return nil
	}

	// FETCH_NEW 停止页中 ≤ 游标的记录就是窗口的起点，不花费额外调用
	for _, raw := range boundary {
		if examined >= s.cfg.DriftScanWindow {
			return candidates, nil
		}
		if err := appendCandidate(raw); err != nil {
			return nil, err
		}
	}

	for examined < s.cfg.DriftScanWindow && scanCalls < s.cfg.DriftScanMaxCalls && fetcher.Budget() > 0 {
		page, err := fetcher.NextPage(ctx)
		if err != nil {
			// 回扫耗尽预算不是失败：窗口覆盖不完整，记入摘要即可
			var exhausted *PaginationExhaustedError
			if errors.As(err, &exhausted) {
				run.AddError(fmt.Sprintf("drift scan truncated: %v", err))
				return candidates, nil
			}
			return nil, err
		}
		if page == nil {
			break
		}
		scanCalls++
		run.Counters.Fetched += len(page.Orders)
		run.Counters.Skipped += page.Dropped

		for _, raw := range page.Orders {
			if examined >= s.cfg.DriftScanWindow {
				break
			}
			// 游标之上的记录已由前向扫描收集
			if cursorID != "" && domain.CompareExternalIDs(raw.ExternalID, cursorID) > 0 {
				continue
			}
			if err := appendCandidate(raw); err != nil {
				return nil, err
			}
		}
	}

	if len(candidates) > 0 {
		s.logger.Info("Drift scan found stale orders",
			zap.String("tenant_code", tenant.TenantCode),
			zap.Int("candidate_count", len(candidates)),
			zap.Int("examined", examined),
		)
	}

	return candidates, nil
}

// finalizeRun 敲定运行记录
// 运行上下文可能已经超时，敲定用独立的短超时上下文。
func (s *SyncService) finalizeRun(run *domain.SyncRun) {
	now := s.clock.Now()
	run.FinishedAt = &now

	finalizeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.FinalizeRun(finalizeCtx, run); err != nil {
		s.logger.Error("Failed to finalize sync run",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
	}
}
