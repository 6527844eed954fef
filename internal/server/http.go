package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"project-canvas-hub/internal/audit"
	audithandler "project-canvas-hub/internal/audit/handler"
	auditrepo "project-canvas-hub/internal/audit/repository"
	canvashandler "project-canvas-hub/internal/canvas/handler"
	"project-canvas-hub/internal/security"
)

// HTTPDeps holds the dependencies of the HTTP router.
type HTTPDeps struct {
	// Canvas backs POST /canvas and the history endpoints. If nil, they are not mounted.
	Canvas canvashandler.CanvasService
	// Hub serves the websocket endpoint /ws. It applies the gate itself. If nil, /ws is not mounted.
	Hub http.Handler
	// Health serves /healthz. If nil, /healthz always answers ok.
	Health http.Handler
	// AuditRepo backs GET /audit. If nil, it is not mounted.
	AuditRepo auditrepo.Repository
	// Gate is applied to every /api route.
	Gate security.Gate
	// Tokens, when set, requires a Bearer access token on every /api route.
	Tokens *security.TokenProvider
	// AuditLogger records /api gate rejections.
	AuditLogger audit.AuditLogger
	// MaxBodyBytes limits the body of a save.
	MaxBodyBytes int64
}

// NewHTTPHandler returns the hub's HTTP router.
//
//	GET  /healthz                                    readiness
//	GET  /metrics                                    Prometheus
//	GET  /ws?projectId=                              websocket subscription and commands
//	POST /api/projects/{projectId}/canvas            save a snapshot
//	GET  /api/projects/{projectId}/history           entries after ?since=, at most ?limit=
//	GET  /api/projects/{projectId}/history/latest    newest entry
//	GET  /api/projects/{projectId}/audit             audit log, newest first
func NewHTTPHandler(deps HTTPDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	health := deps.Health
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
		})
	}
	r.Method(http.MethodGet, "/healthz", health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if deps.Hub != nil {
		r.Method(http.MethodGet, "/ws", deps.Hub)
	}

	r.Route("/api/projects/{projectId}", func(r chi.Router) {
		r.Use(gateMiddleware(deps.Gate, deps.AuditLogger))
		r.Use(bearerMiddleware(deps.Tokens))
		if deps.Canvas != nil {
			canvashandler.NewHTTPHandler(deps.Canvas, deps.MaxBodyBytes).Routes(r)
		}
		if deps.AuditRepo != nil {
			audithandler.NewHandler(deps.AuditRepo).Routes(r)
		}
	})
	return r
}
