// Package server assembles the hub's gRPC server and HTTP router from the service handlers.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	canvasv1 "project-canvas-hub/api/canvas/v1"
	"project-canvas-hub/internal/audit"
	canvashandler "project-canvas-hub/internal/canvas/handler"
	healthhandler "project-canvas-hub/internal/health/handler"
	"project-canvas-hub/internal/security"
	"project-canvas-hub/internal/server/interceptors"
	"project-canvas-hub/internal/telemetry"
)

// healthMethods lists every grpc.health.v1.Health method. They bypass the gate, token and audit
// interceptors so probes work from any network.
var healthMethods = serviceMethods(healthpb.Health_ServiceDesc)

func serviceMethods(desc grpc.ServiceDesc) map[string]bool {
	out := make(map[string]bool, len(desc.Methods)+len(desc.Streams))
	for _, m := range desc.Methods {
		out["/"+desc.ServiceName+"/"+m.MethodName] = true
	}
	for _, st := range desc.Streams {
		out["/"+desc.ServiceName+"/"+st.StreamName] = true
	}
	return out
}

// Deps holds the dependencies of the gRPC services and interceptors.
type Deps struct {
	// Canvas backs CanvasService. If nil, canvas RPCs return Unimplemented.
	Canvas canvashandler.CanvasService
	// HealthPinger is used by the health service for readiness (e.g. *sql.DB). If nil, Check skips the ping.
	HealthPinger healthhandler.Pinger
	// Gate is the trust policy applied to every non-health RPC.
	Gate security.Gate
	// Tokens, when set, requires a Bearer access token on every non-health RPC.
	Tokens *security.TokenProvider
	// AuditLogger records reads and gate rejections. Saves are audited by the canvas service itself.
	AuditLogger audit.AuditLogger
	// Events receives one grpc_request event per admitted RPC. May be nil.
	Events telemetry.EventEmitter
	// MaxRecvBytes bounds an incoming message; 0 keeps the gRPC default.
	MaxRecvBytes int
}

// NewGRPCServer returns a gRPC server with the interceptor chain (gate, auth, telemetry, audit) and
// OpenTelemetry stats installed, and every service registered. Gate rejections are counted and audited by
// the gate itself; telemetry sees only admitted calls, with the authenticated requester.
func NewGRPCServer(deps Deps) *grpc.Server {
	auditSkip := map[string]bool{canvasv1.CanvasService_SaveCanvas_FullMethodName: true}
	for m := range healthMethods {
		auditSkip[m] = true
	}
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.GateUnary(deps.Gate, healthMethods, deps.AuditLogger),
			interceptors.AuthUnary(deps.Tokens, healthMethods),
			interceptors.TelemetryUnary(deps.Events, healthMethods),
			interceptors.AuditUnary(deps.AuditLogger, auditSkip),
		),
	}
	if deps.MaxRecvBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(deps.MaxRecvBytes))
	}
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - canvas.v1.CanvasService → internal/canvas/handler
//   - grpc.health.v1.Health   → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	canvasv1.RegisterCanvasServiceServer(s, canvashandler.NewGRPCServer(deps.Canvas))
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger))
}
