// Package handler serves readiness for the hub over the standard grpc.health.v1 service and over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const pingTimeout = 2 * time.Second

// Pinger is the minimal database handle needed to probe storage. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server implements grpc.health.v1.Health and the HTTP /healthz probe.
// A nil pinger (in-memory store) always reports SERVING.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger Pinger
}

// NewServer returns a health server probing pinger.
func NewServer(pinger Pinger) *Server {
	return &Server{pinger: pinger}
}

// Check reports SERVING when storage answers a ping, NOT_SERVING otherwise. It never returns an error
// for a failed probe so load balancers read the status field.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	return &healthpb.HealthCheckResponse{Status: s.status(ctx)}, nil
}

// ServeHTTP answers 200 {"status":"ok"} or 503 {"status":"unavailable"}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code, body := http.StatusOK, "ok"
	if s.status(r.Context()) != healthpb.HealthCheckResponse_SERVING {
		code, body = http.StatusServiceUnavailable, "unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": body})
}

func (s *Server) status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if s.pinger == nil {
		return healthpb.HealthCheckResponse_SERVING
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.pinger.PingContext(ctx); err != nil {
		log.Printf("health: storage ping failed: %v", err)
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
