package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
	"storesync/internal/service"
)

// CursorsHandler 游标运维接口
// 漂移的最终裁决是人工的：运维在这里查看游标与漂移标记，
// 确认后显式回退游标。
type CursorsHandler struct {
	cursors    repository.CursorsRepository
	flags      service.DriftFlagStore
	reconciler *service.CursorReconciler
	logger     *zap.Logger
}

func NewCursorsHandler(
	cursors repository.CursorsRepository,
	flags service.DriftFlagStore,
	reconciler *service.CursorReconciler,
	logger *zap.Logger,
) *CursorsHandler {
	return &CursorsHandler{
		cursors:    cursors,
		flags:      flags,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Get GET /sync/api/v1/cursors?tenant=&job=
func (h *CursorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	job := r.URL.Query().Get("job")
	if tenantID == "" || !domain.ValidJobType(job) {
		writeJSON(w, http.StatusOK, Fail("tenant and job are required"))
		return
	}

	cursor, err := h.cursors.GetCursor(r.Context(), tenantID, domain.SyncJobType(job))
	if err != nil {
		h.logger.Error("Failed to get cursor",
			zap.String("tenant_id", tenantID),
			zap.String("job_type", job),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to get cursor"))
		return
	}

	out := map[string]any{
		"tenant_id": tenantID,
		"job_type":  job,
	}
	if cursor != nil {
		out["last_external_id"] = cursor.LastExternalID
		out["updated_at"] = cursor.UpdatedAt
	}
	if flagged, note, err := h.flags.GetDrift(r.Context(), tenantID); err == nil && flagged {
		out["drift_flagged"] = true
		out["drift_note"] = note
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

type cursorResetPayload struct {
	TenantID string `json:"tenant_id"`
	JobType  string `json:"job_type"`
	Value    string `json:"value"`
}

// Reset POST /sync/api/v1/cursors/reset
// 显式回退游标并清除漂移标记；下次运行会重扫回退区间。
func (h *CursorsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var payload cursorResetPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if payload.TenantID == "" || !domain.ValidJobType(payload.JobType) {
		writeJSON(w, http.StatusOK, Fail("tenant_id and job_type are required"))
		return
	}

	if err := h.reconciler.Reset(r.Context(), payload.TenantID, domain.SyncJobType(payload.JobType), payload.Value); err != nil {
		h.logger.Error("Failed to reset cursor",
			zap.String("tenant_id", payload.TenantID),
			zap.String("job_type", payload.JobType),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("failed to reset cursor"))
		return
	}
	h.logger.Info("Cursor reset by operator",
		zap.String("tenant_id", payload.TenantID),
		zap.String("job_type", payload.JobType),
		zap.String("value", payload.Value),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"tenant_id":        payload.TenantID,
		"job_type":         payload.JobType,
		"last_external_id": payload.Value,
	}))
}
