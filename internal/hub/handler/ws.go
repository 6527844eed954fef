// Package handler serves the hub websocket endpoint: GET /ws?projectId=&token=.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"project-canvas-hub/internal/audit"
	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/history"
	historydomain "project-canvas-hub/internal/history/domain"
	"project-canvas-hub/internal/hub"
	"project-canvas-hub/internal/security"
	"project-canvas-hub/internal/telemetry"
	"project-canvas-hub/internal/telemetry/metrics"
)

// Rejection reasons. They label metrics, audit and telemetry only; the client always sees a bare 403.
const (
	reasonForbidden      = "forbidden"
	reasonUnauthorized   = "unauthorized"
	reasonMissingProject = "missing_project"
	reasonUnknownProject = "unknown_project"
	reasonLookupFailed   = "lookup_failed"
	reasonBadAccessToken = "bad_access_token"
)

const source = "ws"

// CanvasService is the minimal canvas service needed by the websocket handler.
type CanvasService interface {
	Save(ctx context.Context, req service.SaveRequest) (int64, error)
	Latest(ctx context.Context, projectID string) (*historydomain.Entry, error)
	ListSince(ctx context.Context, projectID string, since int64, limit int) ([]*historydomain.Entry, error)
	ProjectExists(ctx context.Context, projectID string) (bool, error)
}

// Options configure a Handler.
type Options struct {
	Conn hub.ConnOptions
	// ReplyTimeout bounds queuing a direct reply (hello, saved, history) to the connection.
	ReplyTimeout time.Duration
}

// Handler upgrades trusted requests and runs one connection's command loop.
type Handler struct {
	gate     security.Gate
	registry *hub.Registry
	canvas   CanvasService
	tokens   *security.TokenProvider
	audit    audit.AuditLogger
	events   telemetry.EventEmitter
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler returns the websocket handler. tokens, auditLogger and events may be nil. With tokens set the
// handshake must carry a valid access token (accessToken query parameter or Authorization header) and its
// subject is the requester of every save on the connection.
func NewHandler(gate security.Gate, registry *hub.Registry, canvas CanvasService, tokens *security.TokenProvider, auditLogger audit.AuditLogger, events telemetry.EventEmitter, opts Options) *Handler {
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 5 * time.Second
	}
	return &Handler{
		gate:     gate,
		registry: registry,
		canvas:   canvas,
		tokens:   tokens,
		audit:    auditLogger,
		events:   events,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// origin policy is applied by the gate before Upgrade
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := audit.WithIP(context.WithoutCancel(r.Context()), clientIP(r))
	projectID := r.URL.Query().Get("projectId")

	loc, err := h.gate.CheckRequest(r)
	if err != nil {
		reason := reasonUnauthorized
		if errors.Is(err, security.ErrForbidden) {
			reason = reasonForbidden
		}
		h.reject(ctx, w, r, projectID, loc, reason)
		return
	}
	if projectID == "" {
		h.reject(ctx, w, r, projectID, loc, reasonMissingProject)
		return
	}
	exists, err := h.canvas.ProjectExists(ctx, projectID)
	if err != nil {
		log.Printf("hub: project lookup %s: %v", projectID, err)
		h.reject(ctx, w, r, projectID, loc, reasonLookupFailed)
		return
	}
	if !exists {
		h.reject(ctx, w, r, projectID, loc, reasonUnknownProject)
		return
	}
	requesterID := ""
	if h.tokens != nil {
		token := r.URL.Query().Get("accessToken")
		if token == "" {
			token = security.BearerToken(r.Header.Get("Authorization"))
		}
		if requesterID, err = h.tokens.ValidateAccess(token); err != nil {
			h.reject(ctx, w, r, projectID, loc, reasonBadAccessToken)
			return
		}
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		log.Printf("hub: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	conn := hub.NewConn(ws, projectID, h.opts.Conn)
	conn.Start()
	if err := h.registry.Register(projectID, conn); err != nil {
		log.Printf("hub: register %s for project %s: %v", conn.ID(), projectID, err)
		_ = conn.Close()
		return
	}
	defer func() {
		h.registry.Unregister(projectID, conn)
		_ = conn.Close()
		ev := h.event(telemetry.EventHubDisconnected, projectID, loc)
		ev.ConnectionID = conn.ID()
		ev.RequesterID = requesterID
		telemetry.EmitAsync(h.events, ctx, ev)
	}()

	ev := h.event(telemetry.EventHubConnected, projectID, loc)
	ev.ConnectionID = conn.ID()
	ev.RequesterID = requesterID
	telemetry.EmitAsync(h.events, ctx, ev)

	var seq int64
	if latest, err := h.canvas.Latest(ctx, projectID); err != nil {
		log.Printf("hub: latest for hello on %s: %v", conn.ID(), err)
	} else if latest != nil {
		seq = latest.SequenceNumber
	}
	h.reply(ctx, conn, hub.Hello{Type: hub.TypeHello, ProjectID: projectID, ConnectionID: conn.ID(), SequenceNumber: seq})

	s := &session{h: h, conn: conn, projectID: projectID, requesterID: requesterID}
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && conn.State() == hub.StateOpen {
				log.Printf("hub: read from %s: %v", conn.ID(), err)
			}
			return
		}
		s.handle(ctx, data)
	}
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, r *http.Request, projectID string, loc security.Locality, reason string) {
	metrics.HubRejections.WithLabelValues(reason).Inc()
	log.Printf("hub: rejected %s (%s, project %q): %s", r.RemoteAddr, loc, projectID, reason)
	if h.audit != nil {
		h.audit.LogEvent(ctx, projectID, "", audit.ActionGateRejected, audit.ResourceHub,
			fmt.Sprintf(`{"reason":%q,"locality":%q}`, reason, loc))
	}
	ev := h.event(telemetry.EventHubRejected, projectID, loc)
	ev.Result = reason
	telemetry.EmitAsync(h.events, ctx, ev)
	w.WriteHeader(http.StatusForbidden)
}

func (h *Handler) event(eventType, projectID string, loc security.Locality) *telemetry.Event {
	ev := telemetry.NewEvent(eventType, source)
	ev.ProjectID = projectID
	ev.Locality = loc.String()
	return ev
}

func (h *Handler) reply(ctx context.Context, conn *hub.Conn, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: encode reply: %v", err)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, h.opts.ReplyTimeout)
	defer cancel()
	if err := conn.Send(sendCtx, msg); err != nil && !errors.Is(err, hub.ErrEndpointClosed) {
		log.Printf("hub: reply to %s: %v", conn.ID(), err)
		_ = conn.Close()
	}
}

// session is the per-connection command state.
type session struct {
	h           *Handler
	conn        *hub.Conn
	projectID   string
	requesterID string // bound at handshake when access tokens are enabled
}

func (s *session) handle(ctx context.Context, data []byte) {
	var cmd hub.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.fail(ctx, "", hub.CodeBadRequest, "malformed command", "")
		return
	}
	switch cmd.Type {
	case hub.TypeSave:
		s.save(ctx, cmd)
	case hub.TypeSync:
		entries, err := s.h.canvas.ListSince(ctx, s.projectID, cmd.Since, 0)
		if err != nil {
			s.failErr(ctx, cmd.RequestID, err)
			return
		}
		s.h.reply(ctx, s.conn, hub.History{Type: hub.TypeHistory, RequestID: cmd.RequestID, Entries: entries})
	case hub.TypeLatest:
		latest, err := s.h.canvas.Latest(ctx, s.projectID)
		if err != nil {
			s.failErr(ctx, cmd.RequestID, err)
			return
		}
		entries := []*historydomain.Entry{}
		if latest != nil {
			entries = append(entries, latest)
		}
		s.h.reply(ctx, s.conn, hub.History{Type: hub.TypeHistory, RequestID: cmd.RequestID, Entries: entries})
	case hub.TypePing:
		s.h.reply(ctx, s.conn, hub.Pong{Type: hub.TypePong, RequestID: cmd.RequestID})
	default:
		s.fail(ctx, cmd.RequestID, hub.CodeBadRequest, fmt.Sprintf("unknown command type %q", cmd.Type), "")
	}
}

func (s *session) save(ctx context.Context, cmd hub.Command) {
	if len(cmd.Snapshot) == 0 || string(cmd.Snapshot) == "null" {
		s.fail(ctx, cmd.RequestID, hub.CodeBadRequest, "snapshot is required", "")
		return
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(cmd.Snapshot, &snap); err != nil {
		s.fail(ctx, cmd.RequestID, hub.CodeBadRequest, "malformed snapshot", "")
		return
	}
	requesterID := s.requesterID
	if requesterID == "" {
		requesterID = cmd.RequesterID
	}
	seq, err := s.h.canvas.Save(ctx, service.SaveRequest{
		ProjectID:   s.projectID,
		RequesterID: requesterID,
		Snapshot:    snap,
		OriginID:    s.conn.ID(),
		Transport:   source,
	})
	if err != nil {
		s.failErr(ctx, cmd.RequestID, err)
		return
	}
	s.h.reply(ctx, s.conn, hub.Saved{Type: hub.TypeSaved, RequestID: cmd.RequestID, SequenceNumber: seq})
}

func (s *session) failErr(ctx context.Context, requestID string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		s.fail(ctx, requestID, hub.CodeValidation, ve.Error(), ve.EdgeID)
	case errors.Is(err, service.ErrProjectNotFound):
		s.fail(ctx, requestID, hub.CodeNotFound, "project not found", "")
	default:
		if !history.IsTransient(err) {
			log.Printf("hub: command on %s: %v", s.conn.ID(), err)
		}
		s.fail(ctx, requestID, hub.CodeUnavailable, "storage unavailable, retry", "")
	}
}

func (s *session) fail(ctx context.Context, requestID, code, message, edgeID string) {
	s.h.reply(ctx, s.conn, hub.ErrorReply{Type: hub.TypeError, RequestID: requestID, Code: code, Message: message, EdgeID: edgeID})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
