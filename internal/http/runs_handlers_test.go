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

	"storesync/internal/domain"
	"storesync/internal/repository"
)

func seedRun(t *testing.T, runs repository.RunsRepository, jobType domain.SyncJobType, tenantID string, outcome domain.RunOutcome, errs []string) string {
	t.Helper()
	ctx := context.Background()

	run := &domain.SyncRun{
		RunID:     uuid.NewString(),
		JobType:   jobType,
		TenantID:  tenantID,
		StartedAt: time.Now().Add(-time.Minute),
	}
	if err := runs.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.Outcome = outcome
	run.ErrorSummary = errs
	run.Counters.Fetched = 5
	if err := runs.FinalizeRun(ctx, run); err != nil {
		t.Fatalf("failed to finalize run: %v", err)
	}
	return run.RunID
}

func newRunsRouter(runs repository.RunsRepository) *Router {
	logger := zap.NewNop()
	r := NewRouter(logger)
	r.RegisterRunRoutes(NewRunsHandler(runs, logger))
	return r
}

func TestListRuns_FiltersByOutcome(t *testing.T) {
	runs := repository.NewMemoryRunsRepository()
	tenantID := uuid.NewString()
	okID := seedRun(t, runs, domain.JobNewOrders, tenantID, domain.OutcomeSuccess, nil)
	failedID := seedRun(t, runs, domain.JobNewOrders, tenantID, domain.OutcomeFailed, []string{"transport error"})

	router := newRunsRouter(runs)

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/runs?outcome=failed", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"code":2000`) {
		t.Fatalf("expected wrapper code=2000, got: %s", body)
	}
	if !strings.Contains(body, failedID) || strings.Contains(body, okID) {
		t.Fatalf("expected only failed run, got: %s", body)
	}
	if !strings.Contains(body, `"total":1`) {
		t.Fatalf("expected total=1, got: %s", body)
	}
}

func TestGetRun_ByID(t *testing.T) {
	runs := repository.NewMemoryRunsRepository()
	runID := seedRun(t, runs, domain.JobStatusSync, uuid.NewString(), domain.OutcomePartial, []string{"tenant paused: rate limited"})

	router := newRunsRouter(runs)

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/runs/"+runID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, runID) || !strings.Contains(body, `"partial"`) {
		t.Fatalf("expected run detail, got: %s", body)
	}
	if !strings.Contains(body, "rate limited") {
		t.Fatalf("expected error summary in detail, got: %s", body)
	}
}

func TestGetRun_Missing(t *testing.T) {
	runs := repository.NewMemoryRunsRepository()
	router := newRunsRouter(runs)

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/runs/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"code":-1`) {
		t.Fatalf("expected failure wrapper, got: %s", body)
	}
}

func TestExportRuns_ReturnsXlsx(t *testing.T) {
	runs := repository.NewMemoryRunsRepository()
	seedRun(t, runs, domain.JobNewOrders, uuid.NewString(), domain.OutcomeSuccess, nil)

	router := newRunsRouter(runs)

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/runs/export", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("expected xlsx content type, got: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "sync_runs_") {
		t.Fatalf("expected attachment filename, got: %s", cd)
	}
	// xlsx 是 zip 容器，魔数 PK
	if body := w.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Fatalf("expected xlsx payload, got %d bytes", w.Body.Len())
	}
}

func TestRuns_MethodNotAllowed(t *testing.T) {
	router := newRunsRouter(repository.NewMemoryRunsRepository())

	req := httptest.NewRequest(http.MethodPost, "/sync/api/v1/runs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
