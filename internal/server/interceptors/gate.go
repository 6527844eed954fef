package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"project-canvas-hub/internal/audit"
	"project-canvas-hub/internal/security"
	"project-canvas-hub/internal/telemetry/metrics"
)

// tokenMetadataKey is security.TokenHeader as gRPC metadata (keys are lowercase).
const tokenMetadataKey = "x-openclaw-token"

// GateUnary returns a unary server interceptor that applies the trust gate to every RPC not in skipMethods.
// A remote caller without remote access gets PermissionDenied; a token mismatch gets Unauthenticated.
// Rejections are counted and, when auditLogger is set, audited.
func GateUnary(gate security.Gate, skipMethods map[string]bool, auditLogger audit.AuditLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if skipMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		loc, err := gate.Check(PeerFromContext(ctx))
		if err == nil {
			return handler(WithLocality(ctx, loc), req)
		}
		reason, code := "unauthorized", codes.Unauthenticated
		if errors.Is(err, security.ErrForbidden) {
			reason, code = "forbidden", codes.PermissionDenied
		}
		metrics.HubRejections.WithLabelValues(reason).Inc()
		log.Printf("gate: rejected %s %s (%s): %s", ClientIP(ctx), info.FullMethod, loc, reason)
		if auditLogger != nil {
			auditLogger.LogEvent(audit.WithIP(ctx, ClientIP(ctx)), projectIDOf(req), "", audit.ActionGateRejected, audit.ResourceAPI,
				fmt.Sprintf(`{"reason":%q,"locality":%q,"method":%q}`, reason, loc, info.FullMethod))
		}
		return nil, status.Error(code, err.Error())
	}
}

// PeerFromContext extracts gate metadata from a gRPC call: the transport peer address, the :authority
// pseudo-header as host, and the origin and x-openclaw-token metadata.
func PeerFromContext(ctx context.Context) security.Peer {
	var p security.Peer
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		p.RemoteAddr = pr.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		p.Host = first(md, ":authority")
		p.Origin = first(md, "origin")
		p.Token = first(md, tokenMetadataKey)
	}
	return p
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// projectScoped is implemented by requests that target one project.
type projectScoped interface {
	GetProjectID() string
}

func projectIDOf(req interface{}) string {
	if ps, ok := req.(projectScoped); ok {
		return ps.GetProjectID()
	}
	return ""
}
