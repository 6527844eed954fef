// Package handler exposes audit logs over HTTP.
package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"project-canvas-hub/internal/audit/domain"
	auditrepo "project-canvas-hub/internal/audit/repository"
)

const maxLimit = 500

// Handler serves GET /api/projects/{projectId}/audit.
type Handler struct {
	repo auditrepo.Repository
}

// NewHandler returns an audit log handler backed by repo.
func NewHandler(repo auditrepo.Repository) *Handler {
	return &Handler{repo: repo}
}

// Routes mounts the handler on r. r is expected to be the /api/projects/{projectId} subrouter.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/audit", h.List)
}

type listResponse struct {
	Logs []*domain.AuditLog `json:"logs"`
}

// List returns audit logs newest first; limit (default 50, max 500) and offset page the result.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	logs, err := h.repo.ListByProject(r.Context(), projectID, limit, offset)
	if err != nil {
		log.Printf("audit: list %s: %v", projectID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	writeJSON(w, http.StatusOK, listResponse{Logs: logs})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
