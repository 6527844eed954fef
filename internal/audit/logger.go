package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"project-canvas-hub/internal/audit/domain"
	auditrepo "project-canvas-hub/internal/audit/repository"
)

// SentinelProjectID is the project_id used for audit events that have no project (e.g. a handshake rejected
// before projectId was read).
const SentinelProjectID = "_system"

// Actions recorded outside the gRPC audit interceptor.
const (
	ActionCanvasSaved  = "canvas_saved"
	ActionGateRejected = "gate_rejected"
)

// Resources.
const (
	ResourceCanvas = "canvas"
	ResourceHub    = "hub"
	ResourceAPI    = "api"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the sync service and the gate.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, projectID, actor, action, resource, metadata string)
}

type ipKey struct{}

// WithIP returns ctx carrying the client IP, for callers (HTTP, websocket) that know it up front.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// An IP set with WithIP takes precedence. With neither, IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, projectID, actor, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip, _ := ctx.Value(ipKey{}).(string)
	if ip == "" && l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	if ip == "" {
		ip = "unknown"
	}
	if projectID == "" {
		projectID = SentinelProjectID
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
