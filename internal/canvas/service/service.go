// Package service implements canvas saves: validate, append to the history ledger, then notify the
// project's hub subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"project-canvas-hub/internal/audit"
	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/history"
	historydomain "project-canvas-hub/internal/history/domain"
	"project-canvas-hub/internal/hub"
	"project-canvas-hub/internal/telemetry"
	"project-canvas-hub/internal/telemetry/metrics"
)

// ErrProjectNotFound is returned when the project checker does not know the project.
var ErrProjectNotFound = errors.New("project not found")

// saveTimeout bounds a save once it has been detached from the caller's cancellation.
const saveTimeout = 30 * time.Second

// Ledger is the minimal history ledger needed by the canvas service.
type Ledger interface {
	AppendNotify(ctx context.Context, projectID string, snapshot domain.Snapshot, authorID string, onCommit func(ctx context.Context, seq int64)) (int64, error)
	Latest(ctx context.Context, projectID string) (*historydomain.Entry, error)
	ListSinceLimit(ctx context.Context, projectID string, after int64, limit int) ([]*historydomain.Entry, error)
}

// Broadcaster is the part of the hub registry the service notifies after a commit.
type Broadcaster interface {
	BroadcastExcept(ctx context.Context, projectID string, msg []byte, excludeID string) hub.BroadcastResult
}

// ProjectChecker reports whether a project exists.
type ProjectChecker interface {
	Exists(ctx context.Context, projectID string) (bool, error)
}

// SaveRequest is one canvas save.
type SaveRequest struct {
	ProjectID   string
	RequesterID string
	Snapshot    domain.Snapshot
	// OriginID is the hub connection that sent the save; it is not sent the version event. Empty for HTTP/gRPC.
	OriginID string
	// Transport labels metrics and telemetry ("ws", "http", "grpc").
	Transport string
}

// CanvasService validates and commits canvas snapshots.
type CanvasService struct {
	ledger   Ledger
	hub      Broadcaster
	projects ProjectChecker
	audit    audit.AuditLogger
	events   telemetry.EventEmitter
}

// NewCanvasService returns a CanvasService. projects, auditLogger and events may be nil: a nil checker
// accepts every project id.
func NewCanvasService(ledger Ledger, broadcaster Broadcaster, projects ProjectChecker, auditLogger audit.AuditLogger, events telemetry.EventEmitter) *CanvasService {
	return &CanvasService{
		ledger:   ledger,
		hub:      broadcaster,
		projects: projects,
		audit:    auditLogger,
		events:   events,
	}
}

// Save validates req.Snapshot, appends it to the project's history and broadcasts the new version to
// every other subscriber. It returns the committed sequence number.
//
// Errors: *domain.ValidationError for bad input (nothing is stored), ErrProjectNotFound, or the ledger's
// *history.TransientStorageError. Once Append succeeds the save is final; broadcast problems are not errors.
// The save runs detached from ctx cancellation so a dropped connection cannot abort a commit half way.
func (s *CanvasService) Save(ctx context.Context, req SaveRequest) (seq int64, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	defer func() {
		result := "ok"
		switch {
		case err == nil:
		case isValidation(err):
			result = "invalid"
		case errors.Is(err, ErrProjectNotFound):
			result = "not_found"
		default:
			result = "error"
		}
		metrics.CanvasSaves.WithLabelValues(transportLabel(req.Transport), result).Inc()
	}()

	if strings.TrimSpace(req.ProjectID) == "" {
		return 0, &domain.ValidationError{Field: "projectId", Reason: "projectId is required"}
	}
	if strings.TrimSpace(req.RequesterID) == "" {
		return 0, &domain.ValidationError{Field: "requesterId", Reason: "requesterId is required"}
	}
	if err := req.Snapshot.Validate(); err != nil {
		return 0, err
	}
	if err := s.checkProject(ctx, req.ProjectID); err != nil {
		return 0, err
	}

	// The version event is issued under the ledger's project lock so subscribers see commit order.
	seq, err = s.ledger.AppendNotify(ctx, req.ProjectID, req.Snapshot, req.RequesterID, func(ctx context.Context, committed int64) {
		s.broadcastVersion(ctx, req.ProjectID, committed, req.OriginID)
	})
	if err != nil {
		log.Printf("canvas: save project %s failed: %v", req.ProjectID, err)
		return 0, err
	}

	if s.audit != nil {
		s.audit.LogEvent(ctx, req.ProjectID, req.RequesterID, audit.ActionCanvasSaved, audit.ResourceCanvas,
			fmt.Sprintf(`{"sequenceNumber":%d,"transport":%q}`, seq, transportLabel(req.Transport)))
	}
	ev := telemetry.NewEvent(telemetry.EventCanvasSaved, transportLabel(req.Transport))
	ev.ProjectID = req.ProjectID
	ev.RequesterID = req.RequesterID
	ev.ConnectionID = req.OriginID
	ev.SequenceNumber = seq
	ev.Result = "ok"
	telemetry.EmitAsync(s.events, ctx, ev)
	return seq, nil
}

func (s *CanvasService) broadcastVersion(ctx context.Context, projectID string, seq int64, originID string) {
	if s.hub == nil {
		return
	}
	res := s.hub.BroadcastExcept(ctx, projectID, hub.NewVersionEvent(projectID, seq), originID)
	if res.Dropped > 0 {
		log.Printf("canvas: project %s seq %d delivered to %d, dropped %d", projectID, seq, res.Delivered, res.Dropped)
	}
}

// Latest returns the newest history entry for projectID, or nil when it has none.
func (s *CanvasService) Latest(ctx context.Context, projectID string) (*historydomain.Entry, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.ledger.Latest(ctx, projectID)
}

// ListSince returns up to limit entries with sequence number > since, ascending. limit <= 0 means all.
func (s *CanvasService) ListSince(ctx context.Context, projectID string, since int64, limit int) ([]*historydomain.Entry, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.ledger.ListSinceLimit(ctx, projectID, since, limit)
}

// ProjectExists reports whether projectID is known. Without a checker every non-empty id exists.
func (s *CanvasService) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	if projectID == "" {
		return false, nil
	}
	if s.projects == nil {
		return true, nil
	}
	return s.projects.Exists(ctx, projectID)
}

func (s *CanvasService) checkProject(ctx context.Context, projectID string) error {
	ok, err := s.ProjectExists(ctx, projectID)
	if err != nil {
		return &history.TransientStorageError{ProjectID: projectID, Op: "project lookup", Err: err}
	}
	if !ok {
		return ErrProjectNotFound
	}
	return nil
}

func isValidation(err error) bool {
	var ve *domain.ValidationError
	return errors.As(err, &ve)
}

func transportLabel(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
