package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/service"
)

type SchedulerHandler struct {
	scheduler *service.Scheduler
	logger    *zap.Logger
}

func NewSchedulerHandler(scheduler *service.Scheduler, logger *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, logger: logger}
}

// Status GET /sync/api/v1/scheduler/status
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.scheduler.Status()))
}

// Start POST /sync/api/v1/scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Start()
	writeJSON(w, http.StatusOK, Ok(map[string]any{"running": true}))
}

// Stop POST /sync/api/v1/scheduler/stop
// 等待进行中的运行以 aborted 收束后才返回。
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	writeJSON(w, http.StatusOK, Ok(map[string]any{"running": false}))
}

// Trigger POST /sync/api/v1/jobs/{job}/trigger?tenant=
// 异步触发；同一 (job, tenant) 已在运行时返回合并提示而非错误。
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request, job string) {
	if !domain.ValidJobType(job) {
		writeJSON(w, http.StatusOK, Fail("unknown job type: "+job))
		return
	}
	tenantID := r.URL.Query().Get("tenant")

	err := h.scheduler.TriggerJob(domain.SyncJobType(job), tenantID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Ok(map[string]any{"triggered": true}))
	case errors.Is(err, service.ErrRunInFlight):
		writeJSON(w, http.StatusOK, Ok(map[string]any{"triggered": false, "reason": "already running"}))
	case errors.Is(err, service.ErrSchedulerStopped):
		writeJSON(w, http.StatusOK, Fail("scheduler is stopped"))
	default:
		h.logger.Warn("Failed to trigger job",
			zap.String("job_type", job),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	}
}
