package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-canvas-hub/internal/audit"
	"project-canvas-hub/internal/security"
	"project-canvas-hub/internal/server/interceptors"
	"project-canvas-hub/internal/telemetry/metrics"
)

// gateMiddleware applies the trust gate to HTTP requests. A remote caller without remote access gets 403;
// a token mismatch gets 401. Rejections are counted and audited like their gRPC counterparts.
func gateMiddleware(gate security.Gate, auditLogger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc, err := gate.CheckRequest(r)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(interceptors.WithLocality(r.Context(), loc)))
				return
			}
			reason, code := "unauthorized", http.StatusUnauthorized
			if errors.Is(err, security.ErrForbidden) {
				reason, code = "forbidden", http.StatusForbidden
			}
			ip := remoteIP(r)
			metrics.HubRejections.WithLabelValues(reason).Inc()
			log.Printf("gate: rejected %s %s %s (%s): %s", ip, r.Method, r.URL.Path, loc, reason)
			if auditLogger != nil {
				auditLogger.LogEvent(audit.WithIP(r.Context(), ip), chi.URLParam(r, "projectId"), "", audit.ActionGateRejected, audit.ResourceAPI,
					fmt.Sprintf(`{"reason":%q,"locality":%q,"method":%q}`, reason, loc, r.Method+" "+r.URL.Path))
			}
			writeError(w, code, reason)
		})
	}
}

// bearerMiddleware requires a valid Bearer access token and puts its subject in the request context.
// With tokens nil it passes every request through.
func bearerMiddleware(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requesterID, err := tokens.ValidateAccess(security.BearerToken(r.Header.Get("Authorization")))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(interceptors.WithRequester(r.Context(), requesterID)))
		})
	}
}

// remoteIP returns the host part of r.RemoteAddr.
func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
