package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/history"
	historyrepo "project-canvas-hub/internal/history/repository"
	"project-canvas-hub/internal/hub"
	"project-canvas-hub/internal/security"
)

type projectSet map[string]bool

func (p projectSet) Exists(ctx context.Context, projectID string) (bool, error) {
	return p[projectID], nil
}

type testEnv struct {
	srv      *httptest.Server
	registry *hub.Registry
	ledger   *history.Ledger
	handler  *Handler
}

func newEnv(t *testing.T, gate security.Gate, tokens *security.TokenProvider) *testEnv {
	t.Helper()
	registry := hub.NewRegistry(time.Second)
	ledger := history.NewLedger(historyrepo.NewMemoryRepository(), 0)
	canvas := service.NewCanvasService(ledger, registry, projectSet{"P1": true, "P2": true}, nil, nil)
	h := NewHandler(gate, registry, canvas, tokens, nil, nil, Options{})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		registry.Close()
	})
	return &testEnv{srv: srv, registry: registry, ledger: ledger, handler: h}
}

func (e *testEnv) url(query string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

type frame struct {
	Type           string            `json:"type"`
	RequestID      string            `json:"requestId"`
	ProjectID      string            `json:"projectId"`
	ConnectionID   string            `json:"connectionId"`
	SequenceNumber int64             `json:"sequenceNumber"`
	Code           string            `json:"code"`
	EdgeID         string            `json:"edgeId"`
	Entries        []json.RawMessage `json:"entries"`
}

func read(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var f frame
	if err := ws.ReadJSON(&f); err == nil {
		t.Errorf("unexpected frame %+v", f)
	}
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

const validSnapshot = `{"nodes":[{"id":"n1","type":"default","position":{"x":0,"y":0},"data":{}},{"id":"n2","type":"default","position":{"x":1,"y":1},"data":{}}],"edges":[{"id":"e1","source":"n1","target":"n2"}],"selectedNodeIds":[]}`

func saveCmd(requestID, snapshot string) map[string]any {
	return map[string]any{
		"type":        "save",
		"requestId":   requestID,
		"requesterId": "alice",
		"snapshot":    json.RawMessage(snapshot),
	}
}

func waitCount(t *testing.T, r *hub.Registry, projectID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Count(projectID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("Count(%s) = %d, want %d", projectID, r.Count(projectID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandshake_Rejections(t *testing.T) {
	testCases := []struct {
		name       string
		gate       security.Gate
		target     string
		remoteAddr string
		origin     string
	}{
		{"remote peer without allow remote", security.Gate{}, "/ws?projectId=P1", "203.0.113.5:4000", ""},
		{"remote peer with correct token still forbidden", security.Gate{Token: "s3cret"}, "/ws?projectId=P1&token=s3cret", "203.0.113.5:4000", ""},
		{"token mismatch", security.Gate{Token: "s3cret"}, "/ws?projectId=P1&token=nope", "127.0.0.1:4000", ""},
		{"missing token", security.Gate{Token: "s3cret"}, "/ws?projectId=P1", "127.0.0.1:4000", ""},
		{"missing project", security.Gate{}, "/ws", "127.0.0.1:4000", ""},
		{"unknown project", security.Gate{}, "/ws?projectId=P9", "127.0.0.1:4000", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t, tc.gate, nil)
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			req.Host = "canvas.example.com"
			req.RemoteAddr = tc.remoteAddr
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Errorf("body = %q, want empty", rec.Body.String())
			}
			if n := env.registry.Count("P1"); n != 0 {
				t.Errorf("registered = %d, want 0", n)
			}
		})
	}
}

// asRemote makes every request look like it came from 203.0.113.5 for canvas.example.com, so only the
// Origin header can make it local.
func asRemote(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.RemoteAddr = "203.0.113.5:4000"
		r.Host = "canvas.example.com"
		next.ServeHTTP(w, r)
	})
}

func TestHandshake_LocalOriginSatisfiesGate(t *testing.T) {
	env := newEnv(t, security.Gate{}, nil)
	srv := httptest.NewServer(asRemote(env.handler))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?projectId=P1"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("remote dial without a local origin should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("remote dial response = %v, want 403", resp)
	}

	ws := dial(t, url, http.Header{"Origin": []string{"http://localhost:5173"}})
	hello := read(t, ws)
	if hello.Type != "hello" || hello.ProjectID != "P1" {
		t.Errorf("hello = %+v", hello)
	}
	waitCount(t, env.registry, "P1", 1)
}

func TestHello(t *testing.T) {
	env := newEnv(t, security.Gate{Token: "s3cret"}, nil)
	if _, err := env.ledger.Append(context.Background(), "P1", mustSnapshot(t), "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ws := dial(t, env.url("projectId=P1&token=s3cret"), nil)
	hello := read(t, ws)
	if hello.Type != "hello" || hello.ProjectID != "P1" || hello.SequenceNumber != 1 || hello.ConnectionID == "" {
		t.Errorf("hello = %+v", hello)
	}
	waitCount(t, env.registry, "P1", 1)

	ws.Close()
	waitCount(t, env.registry, "P1", 0)
}

func TestSave_FansOutToOtherSubscribers(t *testing.T) {
	env := newEnv(t, security.Gate{}, nil)
	a := dial(t, env.url("projectId=P1"), nil)
	b := dial(t, env.url("projectId=P1"), nil)
	other := dial(t, env.url("projectId=P2"), nil)
	for _, ws := range []*websocket.Conn{a, b, other} {
		if f := read(t, ws); f.Type != "hello" || f.SequenceNumber != 0 {
			t.Fatalf("hello = %+v", f)
		}
	}
	waitCount(t, env.registry, "P1", 2)
	waitCount(t, env.registry, "P2", 1)

	send(t, a, saveCmd("r1", validSnapshot))
	if f := read(t, a); f.Type != "saved" || f.RequestID != "r1" || f.SequenceNumber != 1 {
		t.Errorf("sender got %+v, want saved seq 1", f)
	}
	if f := read(t, b); f.Type != "version" || f.ProjectID != "P1" || f.SequenceNumber != 1 {
		t.Errorf("peer got %+v, want version seq 1", f)
	}
	expectSilence(t, other)
	expectSilence(t, a)
}

func TestSave_ValidationError(t *testing.T) {
	env := newEnv(t, security.Gate{}, nil)
	a := dial(t, env.url("projectId=P1"), nil)
	b := dial(t, env.url("projectId=P1"), nil)
	read(t, a)
	read(t, b)

	dangling := `{"nodes":[{"id":"n1"}],"edges":[{"id":"e7","source":"n1","target":"ghost"}]}`
	send(t, a, saveCmd("r1", dangling))
	f := read(t, a)
	if f.Type != "error" || f.Code != "validation" || f.EdgeID != "e7" || f.RequestID != "r1" {
		t.Errorf("reply = %+v, want validation error for e7", f)
	}
	expectSilence(t, b)

	latest, err := env.ledger.Latest(context.Background(), "P1")
	if err != nil || latest != nil {
		t.Errorf("Latest = %+v, %v; want no history", latest, err)
	}
}

func TestCommands(t *testing.T) {
	env := newEnv(t, security.Gate{}, nil)
	ws := dial(t, env.url("projectId=P1"), nil)
	read(t, ws)

	for i := 0; i < 3; i++ {
		send(t, ws, saveCmd("s", validSnapshot))
		if f := read(t, ws); f.Type != "saved" || f.SequenceNumber != int64(i+1) {
			t.Fatalf("save %d reply = %+v", i, f)
		}
	}

	send(t, ws, map[string]any{"type": "sync", "requestId": "q1", "since": 1})
	if f := read(t, ws); f.Type != "history" || f.RequestID != "q1" || len(f.Entries) != 2 {
		t.Errorf("sync reply = %+v, want 2 entries", f)
	}
	send(t, ws, map[string]any{"type": "latest", "requestId": "q2"})
	f := read(t, ws)
	if f.Type != "history" || len(f.Entries) != 1 {
		t.Fatalf("latest reply = %+v", f)
	}
	var entry struct {
		SequenceNumber int64 `json:"sequenceNumber"`
	}
	json.Unmarshal(f.Entries[0], &entry)
	if entry.SequenceNumber != 3 {
		t.Errorf("latest seq = %d, want 3", entry.SequenceNumber)
	}

	send(t, ws, map[string]any{"type": "ping", "requestId": "p"})
	if f := read(t, ws); f.Type != "pong" || f.RequestID != "p" {
		t.Errorf("ping reply = %+v", f)
	}
	send(t, ws, map[string]any{"type": "rename"})
	if f := read(t, ws); f.Type != "error" || f.Code != "bad_request" {
		t.Errorf("unknown type reply = %+v", f)
	}
	send(t, ws, map[string]any{"type": "save", "requestId": "x", "requesterId": "alice"})
	if f := read(t, ws); f.Type != "error" || f.Code != "bad_request" {
		t.Errorf("save without snapshot reply = %+v", f)
	}
	send(t, ws, map[string]any{"type": "save", "requestId": "y", "snapshot": json.RawMessage(validSnapshot)})
	if f := read(t, ws); f.Type != "error" || f.Code != "validation" {
		t.Errorf("save without requester reply = %+v", f)
	}
	ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if f := read(t, ws); f.Type != "error" || f.Code != "bad_request" {
		t.Errorf("malformed reply = %+v", f)
	}
}

func TestAccessTokens(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	env := newEnv(t, security.Gate{}, tokens)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws?projectId=P1", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing access token status = %d, want 403", rec.Code)
	}

	token, _, err := tokens.IssueAccess("carol", "Carol")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	ws := dial(t, env.url("projectId=P1"), http.Header{"Authorization": {"Bearer " + token}})
	read(t, ws)
	// the body requesterId is ignored in favour of the token subject
	send(t, ws, saveCmd("r1", validSnapshot))
	if f := read(t, ws); f.Type != "saved" {
		t.Fatalf("reply = %+v", f)
	}
	latest, err := env.ledger.Latest(context.Background(), "P1")
	if err != nil || latest == nil || latest.CreatedBy != "carol" {
		t.Errorf("Latest = %+v, %v; want created by carol", latest, err)
	}
}

func mustSnapshot(t *testing.T) domain.Snapshot {
	t.Helper()
	var s domain.Snapshot
	if err := json.Unmarshal([]byte(validSnapshot), &s); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return s
}
