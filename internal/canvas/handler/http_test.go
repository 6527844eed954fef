package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/history"
	historydomain "project-canvas-hub/internal/history/domain"
	historyrepo "project-canvas-hub/internal/history/repository"
	"project-canvas-hub/internal/server/interceptors"
)

type projectSet map[string]bool

func (p projectSet) Exists(ctx context.Context, projectID string) (bool, error) {
	return p[projectID], nil
}

func newCanvasService() *service.CanvasService {
	ledger := history.NewLedger(historyrepo.NewMemoryRepository(), 0)
	return service.NewCanvasService(ledger, nil, projectSet{"P1": true}, nil, nil)
}

func newRouter(canvas CanvasService, maxBody int64) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/projects/{projectId}", NewHTTPHandler(canvas, maxBody).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"requesterId":"alice","snapshot":{"nodes":[{"id":"n1","position":{"x":0,"y":0}},{"id":"n2","position":{"x":1,"y":1}}],"edges":[{"id":"e1","source":"n1","target":"n2"}]}}`

func TestHTTP_SaveAndHistory(t *testing.T) {
	h := newRouter(newCanvasService(), 1<<20)

	for want := int64(1); want <= 3; want++ {
		rec := do(t, h, http.MethodPost, "/api/projects/P1/canvas", validBody, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("save status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp saveResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.SequenceNumber != want {
			t.Errorf("sequenceNumber = %d, want %d", resp.SequenceNumber, want)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/projects/P1/history?since=1&limit=1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var hist historyResponse
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].SequenceNumber != 2 {
		t.Fatalf("entries = %+v, want one entry with seq 2", hist.Entries)
	}
	if hist.Entries[0].CreatedBy != "alice" {
		t.Errorf("createdBy = %q, want alice", hist.Entries[0].CreatedBy)
	}

	rec = do(t, h, http.MethodGet, "/api/projects/P1/history/latest", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest status = %d", rec.Code)
	}
	var latest historydomain.Entry
	if err := json.NewDecoder(rec.Body).Decode(&latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.SequenceNumber != 3 {
		t.Errorf("latest seq = %d, want 3", latest.SequenceNumber)
	}
}

func TestHTTP_RequesterFromContext(t *testing.T) {
	h := newRouter(newCanvasService(), 1<<20)
	ctx := interceptors.WithRequester(context.Background(), "carol")
	if rec := do(t, h, http.MethodPost, "/api/projects/P1/canvas", validBody, ctx); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/projects/P1/history/latest", "", nil)
	var latest historydomain.Entry
	if err := json.NewDecoder(rec.Body).Decode(&latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.CreatedBy != "carol" {
		t.Errorf("createdBy = %q, want carol", latest.CreatedBy)
	}
}

func TestHTTP_SaveErrors(t *testing.T) {
	testCases := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantError  string
		wantEdge   string
	}{
		{"malformed json", "/api/projects/P1/canvas", `{`, http.StatusBadRequest, "bad_request", ""},
		{"missing snapshot", "/api/projects/P1/canvas", `{"requesterId":"alice"}`, http.StatusBadRequest, "bad_request", ""},
		{"missing requester", "/api/projects/P1/canvas", `{"snapshot":{"nodes":[],"edges":[]}}`, http.StatusBadRequest, "validation", ""},
		{
			"dangling edge", "/api/projects/P1/canvas",
			`{"requesterId":"alice","snapshot":{"nodes":[{"id":"n1","position":{"x":0,"y":0}}],"edges":[{"id":"e9","source":"n1","target":"ghost"}]}}`,
			http.StatusBadRequest, "validation", "e9",
		},
		{"unknown project", "/api/projects/P404/canvas", validBody, http.StatusNotFound, "not_found", ""},
		{"too large", "/api/projects/P1/canvas", `{"requesterId":"` + strings.Repeat("a", 300) + `"}`, http.StatusRequestEntityTooLarge, "too_large", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newRouter(newCanvasService(), 256)
			rec := do(t, h, http.MethodPost, tc.path, tc.body, nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tc.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tc.wantError)
			}
			if resp.EdgeID != tc.wantEdge {
				t.Errorf("edgeId = %q, want %q", resp.EdgeID, tc.wantEdge)
			}
		})
	}
}

func TestHTTP_HistoryBadQuery(t *testing.T) {
	h := newRouter(newCanvasService(), 0)
	for _, q := range []string{"since=abc", "since=-1", "limit=x", "limit=-5"} {
		rec := do(t, h, http.MethodGet, "/api/projects/P1/history?"+q, "", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestHTTP_LatestEmpty(t *testing.T) {
	h := newRouter(newCanvasService(), 0)
	rec := do(t, h, http.MethodGet, "/api/projects/P1/history/latest", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/projects/P1/history", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"entries":[]}` {
		t.Errorf("body = %s, want empty entries array", got)
	}
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, service.SaveRequest) (int64, error) {
	return 0, &history.TransientStorageError{ProjectID: "P1", Op: "insert"}
}

func (brokenStore) Latest(context.Context, string) (*historydomain.Entry, error) {
	return nil, &history.TransientStorageError{ProjectID: "P1", Op: "latest"}
}

func (brokenStore) ListSince(context.Context, string, int64, int) ([]*historydomain.Entry, error) {
	return nil, &history.TransientStorageError{ProjectID: "P1", Op: "list"}
}

func TestHTTP_StorageUnavailable(t *testing.T) {
	h := newRouter(brokenStore{}, 0)
	testCases := []struct {
		method, path, body string
	}{
		{http.MethodPost, "/api/projects/P1/canvas", validBody},
		{http.MethodGet, "/api/projects/P1/history", ""},
		{http.MethodGet, "/api/projects/P1/history/latest", ""},
	}
	for _, tc := range testCases {
		rec := do(t, h, tc.method, tc.path, tc.body, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: status = %d, want 503", tc.method, tc.path, rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Errorf("%s %s: missing Retry-After", tc.method, tc.path)
		}
	}
}

func TestPageSize(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{0, MaxHistoryPage},
		{-1, MaxHistoryPage},
		{10, 10},
		{MaxHistoryPage + 1, MaxHistoryPage},
	}
	for _, tc := range testCases {
		if got := pageSize(tc.in); got != tc.want {
			t.Errorf("pageSize(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
