package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
	"storesync/internal/service"
)

type cursorsFixture struct {
	cursors *repository.MemoryCursorsRepository
	flags   *service.MemoryDriftFlags
	router  *Router
}

func newCursorsFixture() *cursorsFixture {
	logger := zap.NewNop()
	cursors := repository.NewMemoryCursorsRepository()
	orders := repository.NewMemoryOrdersRepository()
	flags := service.NewMemoryDriftFlags()
	reconciler := service.NewCursorReconciler(cursors, orders, flags, false, logger)

	router := NewRouter(logger)
	router.RegisterCursorRoutes(NewCursorsHandler(cursors, flags, reconciler, logger))

	return &cursorsFixture{cursors: cursors, flags: flags, router: router}
}

func TestGetCursor_WithDriftFlag(t *testing.T) {
	fx := newCursorsFixture()
	ctx := context.Background()
	tenantID := uuid.NewString()

	if err := fx.cursors.ResetCursor(ctx, tenantID, domain.JobNewOrders, "ORD-102"); err != nil {
		t.Fatalf("failed to seed cursor: %v", err)
	}
	if err := fx.flags.FlagDrift(ctx, tenantID, "local max ORD-150 exceeds upstream max ORD-102"); err != nil {
		t.Fatalf("failed to flag drift: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/cursors?tenant="+tenantID+"&job=new_orders", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"ORD-102"`) {
		t.Fatalf("expected cursor value, got: %s", body)
	}
	if !strings.Contains(body, `"drift_flagged":true`) || !strings.Contains(body, "ORD-150") {
		t.Fatalf("expected drift flag with note, got: %s", body)
	}
}

func TestGetCursor_MissingCursorIsNotError(t *testing.T) {
	fx := newCursorsFixture()
	tenantID := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/cursors?tenant="+tenantID+"&job=new_orders", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `"code":2000`) {
		t.Fatalf("expected success wrapper for missing cursor, got: %s", body)
	}
	if strings.Contains(body, "last_external_id") {
		t.Fatalf("expected no cursor value, got: %s", body)
	}
}

func TestGetCursor_RequiresTenantAndJob(t *testing.T) {
	fx := newCursorsFixture()

	req := httptest.NewRequest(http.MethodGet, "/sync/api/v1/cursors?tenant=x&job=bogus", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"code":-1`) {
		t.Fatalf("expected failure wrapper, got: %s", w.Body.String())
	}
}

func TestResetCursor_RewindsAndClearsFlag(t *testing.T) {
	fx := newCursorsFixture()
	ctx := context.Background()
	tenantID := uuid.NewString()

	if err := fx.cursors.ResetCursor(ctx, tenantID, domain.JobNewOrders, "ORD-150"); err != nil {
		t.Fatalf("failed to seed cursor: %v", err)
	}
	if err := fx.flags.FlagDrift(ctx, tenantID, "drift"); err != nil {
		t.Fatalf("failed to flag drift: %v", err)
	}

	payload := `{"tenant_id":"` + tenantID + `","job_type":"new_orders","value":"ORD-102"}`
	req := httptest.NewRequest(http.MethodPost, "/sync/api/v1/cursors/reset", strings.NewReader(payload))
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"ORD-102"`) {
		t.Fatalf("expected reset response, got: %s", w.Body.String())
	}

	cursor, err := fx.cursors.GetCursor(ctx, tenantID, domain.JobNewOrders)
	if err != nil || cursor == nil {
		t.Fatalf("failed to load cursor: %v", err)
	}
	if cursor.LastExternalID != "ORD-102" {
		t.Fatalf("expected rewound cursor, got: %s", cursor.LastExternalID)
	}

	flagged, _, err := fx.flags.GetDrift(ctx, tenantID)
	if err != nil {
		t.Fatalf("failed to read drift flag: %v", err)
	}
	if flagged {
		t.Fatal("expected drift flag cleared after reset")
	}
}

func TestResetCursor_RejectsUnknownJob(t *testing.T) {
	fx := newCursorsFixture()

	payload := `{"tenant_id":"` + uuid.NewString() + `","job_type":"bogus","value":"ORD-1"}`
	req := httptest.NewRequest(http.MethodPost, "/sync/api/v1/cursors/reset", strings.NewReader(payload))
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), `"code":-1`) {
		t.Fatalf("expected failure wrapper, got: %s", w.Body.String())
	}
}
