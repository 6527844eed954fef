package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/history"
	historydomain "project-canvas-hub/internal/history/domain"
	"project-canvas-hub/internal/server/interceptors"
)

// HTTPHandler serves the canvas command and pull endpoints under /api/projects/{projectId}.
type HTTPHandler struct {
	canvas  CanvasService
	maxBody int64
}

// NewHTTPHandler returns the HTTP handler. maxBody limits the request body of a save.
func NewHTTPHandler(canvas CanvasService, maxBody int64) *HTTPHandler {
	return &HTTPHandler{canvas: canvas, maxBody: maxBody}
}

// Routes mounts the handler on r, the /api/projects/{projectId} subrouter.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/canvas", h.Save)
	r.Get("/history", h.History)
	r.Get("/history/latest", h.Latest)
}

type saveRequest struct {
	RequesterID string           `json:"requesterId"`
	Snapshot    *domain.Snapshot `json:"snapshot"`
}

type saveResponse struct {
	SequenceNumber int64 `json:"sequenceNumber"`
}

type historyResponse struct {
	Entries []*historydomain.Entry `json:"entries"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	EdgeID  string `json:"edgeId,omitempty"`
}

// Save handles POST /canvas with body {requesterId, snapshot}. The bearer token subject, when present,
// replaces requesterId.
func (h *HTTPHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	var body saveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "too_large", Message: "snapshot exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed JSON body"})
		return
	}
	if body.Snapshot == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "snapshot is required"})
		return
	}
	requesterID := body.RequesterID
	if id, ok := interceptors.GetRequesterID(r.Context()); ok {
		requesterID = id
	}
	seq, err := h.canvas.Save(r.Context(), service.SaveRequest{
		ProjectID:   chi.URLParam(r, "projectId"),
		RequesterID: requesterID,
		Snapshot:    *body.Snapshot,
		Transport:   "http",
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{SequenceNumber: seq})
}

// History handles GET /history?since=&limit=.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := queryInt64(q.Get("since"))
	if err != nil || since < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "since must be a non-negative integer"})
		return
	}
	limit, err := queryInt64(q.Get("limit"))
	if err != nil || limit < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "limit must be a non-negative integer"})
		return
	}
	entries, err := h.canvas.ListSince(r.Context(), chi.URLParam(r, "projectId"), since, pageSize(int(limit)))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// Latest handles GET /history/latest. A project without history answers 404.
func (h *HTTPHandler) Latest(w http.ResponseWriter, r *http.Request) {
	entry, err := h.canvas.Latest(r.Context(), chi.URLParam(r, "projectId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "no history"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: ve.Error(), EdgeID: ve.EdgeID})
	case errors.Is(err, service.ErrProjectNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: "project not found"})
	default:
		if !history.IsTransient(err) {
			log.Printf("canvas: http: %v", err)
		}
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: "storage unavailable, retry"})
	}
}

func queryInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
