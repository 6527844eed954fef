package handler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	canvasv1 "project-canvas-hub/api/canvas/v1"
	"project-canvas-hub/internal/canvas/domain"
	"project-canvas-hub/internal/canvas/service"
	"project-canvas-hub/internal/history"
	"project-canvas-hub/internal/server/interceptors"
)

// errorDomain is the ErrorInfo domain of canvas validation failures.
const errorDomain = "canvas.v1"

// GRPCServer implements canvas.v1.CanvasService.
type GRPCServer struct {
	canvasv1.UnimplementedCanvasServiceServer
	canvas CanvasService
}

// NewGRPCServer returns a CanvasService gRPC server backed by canvas.
func NewGRPCServer(canvas CanvasService) *GRPCServer {
	return &GRPCServer{canvas: canvas}
}

// SaveCanvas commits a snapshot. The authenticated requester, when present, replaces req.RequesterID.
func (s *GRPCServer) SaveCanvas(ctx context.Context, req *canvasv1.SaveCanvasRequest) (*canvasv1.SaveCanvasResponse, error) {
	if s.canvas == nil {
		return nil, status.Error(codes.Unimplemented, "method SaveCanvas not implemented")
	}
	requesterID := req.RequesterID
	if id, ok := interceptors.GetRequesterID(ctx); ok {
		requesterID = id
	}
	seq, err := s.canvas.Save(ctx, service.SaveRequest{
		ProjectID:   req.ProjectID,
		RequesterID: requesterID,
		Snapshot:    req.Snapshot,
		Transport:   "grpc",
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return &canvasv1.SaveCanvasResponse{SequenceNumber: seq}, nil
}

// GetLatest returns the newest entry, or an empty response when the project has no history.
func (s *GRPCServer) GetLatest(ctx context.Context, req *canvasv1.GetLatestRequest) (*canvasv1.GetLatestResponse, error) {
	if s.canvas == nil {
		return nil, status.Error(codes.Unimplemented, "method GetLatest not implemented")
	}
	entry, err := s.canvas.Latest(ctx, req.ProjectID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &canvasv1.GetLatestResponse{Entry: entry}, nil
}

// ListHistory returns entries after req.Since, ascending, at most req.Limit (capped at MaxHistoryPage).
func (s *GRPCServer) ListHistory(ctx context.Context, req *canvasv1.ListHistoryRequest) (*canvasv1.ListHistoryResponse, error) {
	if s.canvas == nil {
		return nil, status.Error(codes.Unimplemented, "method ListHistory not implemented")
	}
	if req.Since < 0 || req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "since and limit must not be negative")
	}
	entries, err := s.canvas.ListSince(ctx, req.ProjectID, req.Since, pageSize(req.Limit))
	if err != nil {
		return nil, grpcError(err)
	}
	return &canvasv1.ListHistoryResponse{Entries: entries}, nil
}

func grpcError(err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return validationStatus(ve)
	case errors.Is(err, service.ErrProjectNotFound):
		return status.Error(codes.NotFound, "project not found")
	default:
		if !history.IsTransient(err) {
			log.Printf("canvas: grpc: %v", err)
		}
		return status.Error(codes.Unavailable, "storage unavailable, retry")
	}
}

// validationStatus is InvalidArgument carrying a BadRequest field violation and an ErrorInfo. For a
// dangling edge the violation's field is edges[<id>].<source|target> and ErrorInfo metadata holds edgeId,
// the same id the HTTP and websocket replies carry.
func validationStatus(ve *domain.ValidationError) error {
	st := status.New(codes.InvalidArgument, ve.Error())
	field := ve.Field
	info := &errdetails.ErrorInfo{Reason: "INVALID_SNAPSHOT", Domain: errorDomain}
	if ve.EdgeID != "" {
		field = fmt.Sprintf("snapshot.edges[%s].%s", ve.EdgeID, ve.Field)
		info.Reason = "DANGLING_EDGE"
		info.Metadata = map[string]string{"edgeId": ve.EdgeID, "nodeId": ve.NodeID}
	}
	detailed, err := st.WithDetails(
		&errdetails.BadRequest{FieldViolations: []*errdetails.BadRequest_FieldViolation{{Field: field, Description: ve.Error()}}},
		info,
	)
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
