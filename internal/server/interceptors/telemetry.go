package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"project-canvas-hub/internal/telemetry"
)

// TelemetryUnary returns a unary server interceptor that emits a grpc_request event after each RPC.
// Best-effort: emits run asynchronously and never fail the RPC. A nil emitter disables it.
// skipMethods is the set of full method names to not emit (e.g. the health check).
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		event := telemetry.NewEvent(telemetry.EventGRPCRequest, "grpc_interceptor")
		event.Method = info.FullMethod
		event.Result = status.Code(err).String()
		event.DurationMs = time.Since(start).Milliseconds()
		event.ProjectID = projectIDOf(req)
		event.RequesterID, _ = GetRequesterID(ctx)
		telemetry.EmitAsync(emitter, ctx, event)
		return resp, err
	}
}
