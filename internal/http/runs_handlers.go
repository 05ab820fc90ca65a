package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"storesync/internal/domain"
	"storesync/internal/repository"
)

type RunsHandler struct {
	runs   repository.RunsRepository
	logger *zap.Logger
}

func NewRunsHandler(runs repository.RunsRepository, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{runs: runs, logger: logger}
}

func runToMap(run *domain.SyncRun) map[string]any {
	out := map[string]any{
		"run_id":     run.RunID,
		"job_type":   run.JobType,
		"tenant_id":  run.TenantID,
		"started_at": run.StartedAt,
		"outcome":    run.Outcome,
		"counters":   run.Counters,
	}
	if run.FinishedAt != nil {
		out["finished_at"] = *run.FinishedAt
	}
	if len(run.ErrorSummary) > 0 {
		out["error_summary"] = run.ErrorSummary
	}
	return out
}

// List GET /sync/api/v1/runs?job=&tenant=&outcome=&page=&size=
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.RunFilters{
		JobType:  r.URL.Query().Get("job"),
		TenantID: r.URL.Query().Get("tenant"),
		Outcome:  r.URL.Query().Get("outcome"),
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)

	items, total, err := h.runs.ListRuns(r.Context(), filter, page, size)
	if err != nil {
		h.logger.Error("Failed to list sync runs", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to list runs"))
		return
	}

	out := make([]any, 0, len(items))
	for _, run := range items {
		out = append(out, runToMap(run))
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

// Get GET /sync/api/v1/runs/{run_id}
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := h.runs.GetRun(r.Context(), runID)
	if err != nil {
		h.logger.Error("Failed to get sync run", zap.String("run_id", runID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to get run"))
		return
	}
	if run == nil {
		writeJSON(w, http.StatusOK, Fail("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(runToMap(run)))
}

// Export GET /sync/api/v1/runs/export?job=&tenant=&outcome=
// 导出最近的运行历史为 Excel 文件
func (h *RunsHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter := repository.RunFilters{
		JobType:  r.URL.Query().Get("job"),
		TenantID: r.URL.Query().Get("tenant"),
		Outcome:  r.URL.Query().Get("outcome"),
	}
	size := parseInt(r.URL.Query().Get("size"), 1000)

	items, _, err := h.runs.ListRuns(r.Context(), filter, 1, size)
	if err != nil {
		h.logger.Error("Failed to list sync runs for export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to list runs"))
		return
	}

	data, err := GenerateRunsExport(items)
	if err != nil {
		h.logger.Error("Failed to generate runs export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("sync_runs_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
