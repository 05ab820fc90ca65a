package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/repository"
)

// fakeClock 假时钟：After 立即触发并推进虚拟时间，测试不真实 sleep
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	waited []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waited = append(c.waited, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waited))
	copy(out, c.waited)
	return out
}

// blockClock 假时钟：After 永不触发，让调度循环在测试中保持空闲
type blockClock struct {
	fakeClock
}

func newBlockClock() *blockClock {
	c := &blockClock{}
	c.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return c
}

func (c *blockClock) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// fakeStoreClient 假上游：持有一组订单，按订单号数值从新到旧分页
type fakeStoreClient struct {
	mu       sync.Mutex
	orders   []domain.RawOrder
	pageErr  error // 任一 FetchOrdersPage 调用返回的错误
	errPage  int   // 0 = 所有页；>0 = 只在该页报错
	reqPages int
}

func newFakeStoreClient(orders ...domain.RawOrder) *fakeStoreClient {
	c := &fakeStoreClient{}
	c.SetOrders(orders...)
	return c
}

func (c *fakeStoreClient) SetOrders(orders ...domain.RawOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = append([]domain.RawOrder(nil), orders...)
	sort.Slice(c.orders, func(i, j int) bool {
		return domain.CompareExternalIDs(c.orders[i].ExternalID, c.orders[j].ExternalID) > 0
	})
}

func (c *fakeStoreClient) SetStatus(externalID, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ExternalID == externalID {
			c.orders[i].StatusLabel = label
		}
	}
}

func (c *fakeStoreClient) Pages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqPages
}

func (c *fakeStoreClient) FetchOrdersPage(_ context.Context, page, size int) (*OrderPage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqPages++
	if c.pageErr != nil && (c.errPage == 0 || c.errPage == page) {
		return nil, c.pageErr
	}

	start := (page - 1) * size
	if start >= len(c.orders) {
		return &OrderPage{HasMore: false}, nil
	}
	end := start + size
	if end > len(c.orders) {
		end = len(c.orders)
	}
	return &OrderPage{
		Orders:  append([]domain.RawOrder(nil), c.orders[start:end]...),
		HasMore: end < len(c.orders),
	}, nil
}

func (c *fakeStoreClient) FetchOrder(_ context.Context, externalID string) (*domain.RawOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.orders {
		if c.orders[i].ExternalID == externalID {
			raw := c.orders[i]
			return &raw, nil
		}
	}
	return nil, nil
}

func fakeFactory(client StoreOrderClient) StoreClientFactory {
	return func(_ *domain.Tenant, _ *zap.Logger) StoreOrderClient {
		return client
	}
}

func rawOrder(externalID, status string) domain.RawOrder {
	return domain.RawOrder{
		ExternalID:  externalID,
		Reference:   "REF-" + externalID,
		StatusLabel: status,
		Total:       19.90,
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}
}

func testTenant(id, code string) *domain.Tenant {
	return &domain.Tenant{
		TenantID:   id,
		TenantCode: code,
		TenantName: code,
		APIBaseURL: "http://upstream.local",
		Status:     domain.TenantStatusActive,
	}
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		NewOrdersInterval:  300,
		ActiveHourStart:    0,
		ActiveHourEnd:      0,
		StatusSyncInterval: 1800,
		CleanupHour:        4,
		RunRetentionDays:   30,
		MaxPagesPerRun:     20,
		MinRequestDelayMs:  0,
		DefaultPageSize:    3,
		DriftScanEnabled:   true,
		DriftScanWindow:    10,
		DriftScanMaxCalls:  5,
		TenantWorkers:      3,
		RunTimeoutSecs:     0,
	}
}

// syncFixture 同步服务测试装配
type syncFixture struct {
	cfg        *config.SyncConfig
	tenants    *repository.MemoryTenantsRepository
	orders     *repository.MemoryOrdersRepository
	cursors    *repository.MemoryCursorsRepository
	runs       *repository.MemoryRunsRepository
	flags      *MemoryDriftFlags
	clock      *fakeClock
	reconciler *CursorReconciler
	svc        *SyncService
}

func newSyncFixture(factory StoreClientFactory, cfg *config.SyncConfig) *syncFixture {
	logger := zap.NewNop()
	f := &syncFixture{
		cfg:     cfg,
		tenants: repository.NewMemoryTenantsRepository(),
		orders:  repository.NewMemoryOrdersRepository(),
		cursors: repository.NewMemoryCursorsRepository(),
		runs:    repository.NewMemoryRunsRepository(),
		flags:   NewMemoryDriftFlags(),
		clock:   newFakeClock(),
	}
	upserter := NewUpsertEngine(f.orders, logger)
	f.reconciler = NewCursorReconciler(f.cursors, f.orders, f.flags, cfg.DriftAutoReset, logger)
	f.svc = NewSyncService(cfg, f.tenants, f.runs, f.cursors, f.orders, upserter, f.reconciler, factory, f.clock, logger)
	return f
}

func (f *syncFixture) cursorValue(tenantID string) string {
	cursor, err := f.cursors.GetCursor(context.Background(), tenantID, domain.JobNewOrders)
	if err != nil || cursor == nil {
		return ""
	}
	return cursor.LastExternalID
}
