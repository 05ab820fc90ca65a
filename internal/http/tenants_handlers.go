package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
)

type TenantsHandler struct {
	repo   repository.TenantsRepository
	logger *zap.Logger
}

func NewTenantsHandler(repo repository.TenantsRepository, logger *zap.Logger) *TenantsHandler {
	return &TenantsHandler{repo: repo, logger: logger}
}

// tenantPayload 创建/更新请求体
// API token 只写不读：响应里永远不回显。
type tenantPayload struct {
	TenantCode            string          `json:"tenant_code"`
	TenantName            string          `json:"tenant_name"`
	APIBaseURL            string          `json:"api_base_url"`
	APIToken              string          `json:"api_token"`
	PageSize              int             `json:"page_size"`
	DeliveryCredentialKey string          `json:"delivery_credential_key"`
	Status                string          `json:"status"`
	Metadata              json.RawMessage `json:"metadata"`
}

func tenantToMap(t *domain.Tenant) map[string]any {
	return map[string]any{
		"tenant_id":               t.TenantID,
		"tenant_code":             t.TenantCode,
		"tenant_name":             t.TenantName,
		"api_base_url":            t.APIBaseURL,
		"page_size":               t.PageSize,
		"delivery_credential_key": t.DeliveryCredentialKey,
		"status":                  t.Status,
		"metadata":                t.Metadata,
	}
}

func (h *TenantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.repo == nil {
		writeJSON(w, http.StatusOK, Fail("tenants repo is not configured"))
		return
	}

	switch {
	case r.URL.Path == "/sync/api/v1/admin/tenants":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return

	case strings.HasPrefix(r.URL.Path, "/sync/api/v1/admin/tenants/"):
		id := strings.TrimPrefix(r.URL.Path, "/sync/api/v1/admin/tenants/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			// 软删除：订单数据保留，只把店铺移出同步
			if err := h.repo.SetTenantStatus(r.Context(), id, domain.TenantStatusDeleted); err != nil {
				writeJSON(w, http.StatusOK, Fail("failed to delete tenant"))
				return
			}
			writeJSON(w, http.StatusOK, Ok[any](nil))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *TenantsHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := repository.TenantFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)

	items, total, err := h.repo.ListTenants(r.Context(), filter, page, size)
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to list tenants"))
		return
	}
	out := make([]any, 0, len(items))
	for _, t := range items {
		out = append(out, tenantToMap(t))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

func (h *TenantsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.repo.GetTenant(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("failed to get tenant"))
		return
	}
	if t == nil {
		writeJSON(w, http.StatusOK, Fail("tenant not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantToMap(t)))
}

func (h *TenantsHandler) create(w http.ResponseWriter, r *http.Request) {
	var payload tenantPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if payload.TenantCode == "" || payload.APIBaseURL == "" {
		writeJSON(w, http.StatusOK, Fail("tenant_code and api_base_url are required"))
		return
	}
	if payload.Status == "" {
		payload.Status = domain.TenantStatusActive
	}

	tenant := &domain.Tenant{
		TenantID:              uuid.NewString(),
		TenantCode:            payload.TenantCode,
		TenantName:            payload.TenantName,
		APIBaseURL:            payload.APIBaseURL,
		APIToken:              payload.APIToken,
		PageSize:              payload.PageSize,
		DeliveryCredentialKey: payload.DeliveryCredentialKey,
		Status:                payload.Status,
		Metadata:              payload.Metadata,
	}
	id, err := h.repo.CreateTenant(r.Context(), tenant)
	if err != nil {
		h.logger.Error("Failed to create tenant",
			zap.String("tenant_code", payload.TenantCode),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to create tenant"))
		return
	}
	tenant.TenantID = id
	writeJSON(w, http.StatusOK, Ok(tenantToMap(tenant)))
}

func (h *TenantsHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	var payload tenantPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	existing, err := h.repo.GetTenant(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail("failed to get tenant"))
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusOK, Fail("tenant not found"))
		return
	}

	// tenant_code 一旦建立不允许变更，订单按它归属
	if payload.TenantCode != "" && payload.TenantCode != existing.TenantCode {
		writeJSON(w, http.StatusOK, Fail("tenant_code cannot be changed"))
		return
	}
	if payload.TenantName != "" {
		existing.TenantName = payload.TenantName
	}
	if payload.APIBaseURL != "" {
		existing.APIBaseURL = payload.APIBaseURL
	}
	if payload.APIToken != "" {
		existing.APIToken = payload.APIToken
	}
	if payload.PageSize > 0 {
		existing.PageSize = payload.PageSize
	}
	if payload.DeliveryCredentialKey != "" {
		existing.DeliveryCredentialKey = payload.DeliveryCredentialKey
	}
	if payload.Status != "" {
		existing.Status = payload.Status
	}
	if len(payload.Metadata) > 0 {
		existing.Metadata = payload.Metadata
	}

	if err := h.repo.UpdateTenant(r.Context(), id, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusOK, Fail("tenant not found"))
			return
		}
		writeJSON(w, http.StatusOK, Fail("failed to update tenant"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(tenantToMap(existing)))
}
