package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storesync/internal/domain"
)

// PagedFetcher 限速分页抓取器
// 包装单个店铺的客户端，保证三件事：
//  1. 同一店铺连续请求之间的最小间隔（上游限流防护）
//  2. 单次运行的硬性请求数上限（上游分页不收敛时防失控）
//  3. 页大小采用店铺配置的上限
//
// 不同店铺可以并发各持一个 fetcher；同一店铺内由调度器的互斥保证串行。
type PagedFetcher struct {
	client   StoreOrderClient
	clock    Clock
	logger   *zap.Logger
	tenant   *domain.Tenant
	minDelay time.Duration
	maxCalls int
	pageSize int

	page     int
	calls    int
	lastCall time.Time
	hasMore  bool
}

// NewPagedFetcher 创建限速分页抓取器（一次运行一个实例）
func NewPagedFetcher(tenant *domain.Tenant, client StoreOrderClient, clock Clock, minDelay time.Duration, maxCalls, defaultPageSize int, logger *zap.Logger) *PagedFetcher {
	pageSize := tenant.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &PagedFetcher{
		client:   client,
		clock:    clock,
		logger:   logger,
		tenant:   tenant,
		minDelay: minDelay,
		maxCalls: maxCalls,
		pageSize: pageSize,
		hasMore:  true,
	}
}

// Calls 已消耗的 API 调用数（回扫预算按它扣减）
func (f *PagedFetcher) Calls() int {
	return f.calls
}

// Budget 剩余可用的 API 调用数
func (f *PagedFetcher) Budget() int {
	return f.maxCalls - f.calls
}

// NextPage 抓取下一页（从第 1 页开始，按订单号从新到旧）
// 没有更多页时返回 (nil, nil)；超出调用上限返回 PaginationExhaustedError。
func (f *PagedFetcher) NextPage(ctx context.Context) (*OrderPage, error) {
	if !f.hasMore {
		return nil, nil
	}
	if err := f.consumeBudget(ctx); err != nil {
		return nil, err
	}

	f.page++
	page, err := f.client.FetchOrdersPage(ctx, f.page, f.pageSize)
	if err != nil {
		return nil, err
	}

	f.hasMore = page.HasMore && len(page.Orders) > 0
	return page, nil
}

// FetchOne 按外部订单号直取（回扫/漂移诊断），同样受限速与预算约束
func (f *PagedFetcher) FetchOne(ctx context.Context, externalID string) (*domain.RawOrder, error) {
	if err := f.consumeBudget(ctx); err != nil {
		return nil, err
	}
	return f.client.FetchOrder(ctx, externalID)
}

// consumeBudget 扣减调用预算并执行限速等待
func (f *PagedFetcher) consumeBudget(ctx context.Context) error {
	if f.calls >= f.maxCalls {
		return &PaginationExhaustedError{TenantCode: f.tenant.TenantCode, Pages: f.calls}
	}

	if f.minDelay > 0 && !f.lastCall.IsZero() {
		elapsed := f.clock.Now().Sub(f.lastCall)
		if wait := f.minDelay - elapsed; wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.clock.After(wait):
			}
		}
	}

	f.calls++
	f.lastCall = f.clock.Now()
	return nil
}
