package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/repository"
	"storesync/internal/service"
)

type schedulerWebFixture struct {
	scheduler *service.Scheduler
	runs      *repository.MemoryRunsRepository
	tenantID  string
	router    *Router
}

// newSchedulerWebFixture 用内存仓储和本地假上游拉起一套完整的调度器
func newSchedulerWebFixture(t *testing.T) *schedulerWebFixture {
	t.Helper()
	logger := zap.NewNop()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders": [], "has_more": false}`))
	}))
	t.Cleanup(upstream.Close)

	tenants := repository.NewMemoryTenantsRepository()
	runs := repository.NewMemoryRunsRepository()
	cursors := repository.NewMemoryCursorsRepository()
	orders := repository.NewMemoryOrdersRepository()

	tenantID, err := tenants.CreateTenant(context.Background(), &domain.Tenant{
		TenantCode: "shop-one",
		TenantName: "Shop One",
		APIBaseURL: upstream.URL,
		APIToken:   "token",
		Status:     domain.TenantStatusActive,
	})
	if err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	cfg := &config.SyncConfig{
		NewOrdersInterval:  3600,
		StatusSyncInterval: 3600,
		CleanupHour:        3,
		RunRetentionDays:   30,
		MaxPagesPerRun:     10,
		DefaultPageSize:    50,
		TenantWorkers:      2,
		RunTimeoutSecs:     5,
	}

	clock := service.NewRealClock()
	flags := service.NewMemoryDriftFlags()
	upserter := service.NewUpsertEngine(orders, logger)
	reconciler := service.NewCursorReconciler(cursors, orders, flags, false, logger)
	syncSvc := service.NewSyncService(cfg, tenants, runs, cursors, orders, upserter, reconciler, service.NewStoreClient, clock, logger)
	statusSvc := service.NewStatusSyncService(cfg, service.NewNoopDeliveryProvider(), tenants, runs, upserter, reconciler, orders, service.NewStoreClient, 50, clock, logger)
	scheduler := service.NewScheduler(cfg, syncSvc, statusSvc, tenants, runs, service.NewNoopRunLocker(), clock, logger)
	t.Cleanup(scheduler.Stop)

	router := NewRouter(logger)
	router.RegisterSchedulerRoutes(NewSchedulerHandler(scheduler, logger))

	return &schedulerWebFixture{
		scheduler: scheduler,
		runs:      runs,
		tenantID:  tenantID,
		router:    router,
	}
}

func (fx *schedulerWebFixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func TestSchedulerEndpoints_StartStatusStop(t *testing.T) {
	fx := newSchedulerWebFixture(t)

	w := fx.do(http.MethodPost, "/sync/api/v1/scheduler/start")
	if !strings.Contains(w.Body.String(), `"running":true`) {
		t.Fatalf("expected running after start, got: %s", w.Body.String())
	}

	w = fx.do(http.MethodGet, "/sync/api/v1/scheduler/status")
	body := w.Body.String()
	if !strings.Contains(body, `"running":true`) {
		t.Fatalf("expected running status, got: %s", body)
	}
	for _, job := range []string{"new_orders", "status_sync", "cleanup"} {
		if !strings.Contains(body, job) {
			t.Fatalf("expected job %s in status, got: %s", job, body)
		}
	}

	w = fx.do(http.MethodPost, "/sync/api/v1/scheduler/stop")
	if !strings.Contains(w.Body.String(), `"running":false`) {
		t.Fatalf("expected stopped, got: %s", w.Body.String())
	}
}

func TestTriggerEndpoint_RunsJob(t *testing.T) {
	fx := newSchedulerWebFixture(t)
	fx.scheduler.Start()

	w := fx.do(http.MethodPost, "/sync/api/v1/jobs/new_orders/trigger?tenant="+fx.tenantID)
	if !strings.Contains(w.Body.String(), `"triggered":true`) {
		t.Fatalf("expected triggered, got: %s", w.Body.String())
	}

	// 触发是异步的，等待运行敲定
	deadline := time.Now().Add(3 * time.Second)
	for {
		items, _, err := fx.runs.ListRuns(context.Background(), repository.RunFilters{TenantID: fx.tenantID}, 1, 10)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(items) == 1 && items[0].Outcome == domain.OutcomeSuccess {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finalize, got %d runs", len(items))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTriggerEndpoint_UnknownJob(t *testing.T) {
	fx := newSchedulerWebFixture(t)
	fx.scheduler.Start()

	w := fx.do(http.MethodPost, "/sync/api/v1/jobs/bogus/trigger")
	if !strings.Contains(w.Body.String(), "unknown job type") {
		t.Fatalf("expected unknown job failure, got: %s", w.Body.String())
	}
}

func TestTriggerEndpoint_WhenStopped(t *testing.T) {
	fx := newSchedulerWebFixture(t)

	w := fx.do(http.MethodPost, "/sync/api/v1/jobs/new_orders/trigger?tenant="+fx.tenantID)
	if !strings.Contains(w.Body.String(), "scheduler is stopped") {
		t.Fatalf("expected stopped failure, got: %s", w.Body.String())
	}
}

func TestTriggerEndpoint_UnknownTenant(t *testing.T) {
	fx := newSchedulerWebFixture(t)
	fx.scheduler.Start()

	w := fx.do(http.MethodPost, "/sync/api/v1/jobs/new_orders/trigger?tenant="+uuid.NewString())
	if !strings.Contains(w.Body.String(), `"code":-1`) {
		t.Fatalf("expected failure for unknown tenant, got: %s", w.Body.String())
	}
}

func TestTriggerEndpoint_MethodNotAllowed(t *testing.T) {
	fx := newSchedulerWebFixture(t)

	w := fx.do(http.MethodGet, "/sync/api/v1/jobs/new_orders/trigger")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
