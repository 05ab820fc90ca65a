package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSchedulerRoutes 注册调度器运维路由
func (r *Router) RegisterSchedulerRoutes(h *SchedulerHandler) {
	r.Handle("/sync/api/v1/scheduler/status", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Status(w, req)
	})

	r.Handle("/sync/api/v1/scheduler/start", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Start(w, req)
	})

	r.Handle("/sync/api/v1/scheduler/stop", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Stop(w, req)
	})

	// POST /sync/api/v1/jobs/{job}/trigger
	r.Handle("/sync/api/v1/jobs/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/sync/api/v1/jobs/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "trigger" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Trigger(w, req, parts[0])
	})
}

// RegisterRunRoutes 注册运行历史路由
func (r *Router) RegisterRunRoutes(h *RunsHandler) {
	r.Handle("/sync/api/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.List(w, req)
	})

	r.Handle("/sync/api/v1/runs/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Export(w, req)
	})

	// GET /sync/api/v1/runs/{run_id}
	r.Handle("/sync/api/v1/runs/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(req.URL.Path, "/sync/api/v1/runs/")
		if id == "" || id == "export" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Get(w, req, id)
	})
}

// RegisterCursorRoutes 注册游标运维路由
func (r *Router) RegisterCursorRoutes(h *CursorsHandler) {
	r.Handle("/sync/api/v1/cursors", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, req)
	})

	r.Handle("/sync/api/v1/cursors/reset", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Reset(w, req)
	})
}

// RegisterAdminTenantRoutes 注册店铺管理路由
func (r *Router) RegisterAdminTenantRoutes(h *TenantsHandler) {
	r.Handle("/sync/api/v1/admin/tenants", h.ServeHTTP)
	r.Handle("/sync/api/v1/admin/tenants/", h.ServeHTTP)
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/sync/api/v1/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
}
