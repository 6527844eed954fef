package interceptors

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type loggedEvent struct {
	projectID, actor, action, resource, metadata string
}

// recordingAuditLogger implements audit.AuditLogger for interceptor tests.
type recordingAuditLogger struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (l *recordingAuditLogger) LogEvent(ctx context.Context, projectID, actor, action, resource, metadata string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, loggedEvent{projectID, actor, action, resource, metadata})
}

type projectRequest struct{ projectID string }

func (r projectRequest) GetProjectID() string { return r.projectID }

func okHandler(ctx context.Context, req interface{}) (interface{}, error) {
	return "success", nil
}

func TestAuditUnary_SkipMethod(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, map[string]bool{"/grpc.health.v1.Health/Check": true})

	resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/grpc.health.v1.Health/Check",
	}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
	if len(logger.events) != 0 {
		t.Errorf("audit events = %d, want 0", len(logger.events))
	}
}

func TestAuditUnary_RecordsRequest(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, nil)

	ctx := WithRequester(context.Background(), "alice")
	_, err := interceptor(ctx, projectRequest{"P1"}, &grpc.UnaryServerInfo{
		FullMethod: "/canvas.v1.CanvasService/ListHistory",
	}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(logger.events))
	}
	want := loggedEvent{"P1", "alice", "list", "canvas", `{"code":"OK"}`}
	if logger.events[0] != want {
		t.Errorf("event = %+v, want %+v", logger.events[0], want)
	}
}

func TestAuditUnary_HandlerError(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, nil)
	handlerErr := status.Error(codes.NotFound, "project not found")

	_, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/canvas.v1.CanvasService/GetLatest",
	}, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Errorf("err = %v, want handler error", err)
	}
	if len(logger.events) != 1 || logger.events[0].metadata != `{"code":"NotFound"}` {
		t.Errorf("events = %+v", logger.events)
	}
	if logger.events[0].projectID != "" || logger.events[0].actor != "" {
		t.Errorf("event = %+v, want no project or actor", logger.events[0])
	}
}

func TestAuditUnary_NilLogger(t *testing.T) {
	interceptor := AuditUnary(nil, nil)
	resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: "/x.v1.Y/Z"}, okHandler)
	if err != nil || resp != "success" {
		t.Errorf("interceptor = %v, %v", resp, err)
	}
}

func TestClientIP_XForwardedFor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"x-forwarded-for": "192.168.1.1",
	}))
	ip := ClientIP(ctx)
	if ip != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.1")
	}
}

func TestClientIP_XForwardedFor_WithComma(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"x-forwarded-for": "192.168.1.1, 10.0.0.1",
	}))
	ip := ClientIP(ctx)
	if ip != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.1")
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"x-real-ip": "192.168.1.2",
	}))
	ip := ClientIP(ctx)
	if ip != "192.168.1.2" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.2")
	}
}

func TestClientIP_XForwardedFor_Precedence(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"x-forwarded-for": "192.168.1.1",
		"x-real-ip":       "192.168.1.2",
	}))
	ip := ClientIP(ctx)
	if ip != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.1")
	}
}

func TestClientIP_PeerAddress(t *testing.T) {
	addr := &net.TCPAddr{
		IP:   net.ParseIP("192.168.1.3"),
		Port: 12345,
	}
	ctx := peer.NewContext(context.Background(), &peer.Peer{
		Addr: addr,
	})
	ip := ClientIP(ctx)
	if ip != "192.168.1.3" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.3")
	}
}

func TestClientIP_Unknown(t *testing.T) {
	ctx := context.Background()
	ip := ClientIP(ctx)
	if ip != "unknown" {
		t.Errorf("ip = %q, want %q", ip, "unknown")
	}
}

func TestClientIP_Whitespace(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"x-forwarded-for": "  192.168.1.1  ",
	}))
	ip := ClientIP(ctx)
	if ip != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", ip, "192.168.1.1")
	}
}

