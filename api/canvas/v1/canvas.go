// Package canvasv1 defines the canvas.v1.CanvasService gRPC API: messages, service descriptor and client.
package canvasv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"project-canvas-hub/internal/canvas/domain"
	historydomain "project-canvas-hub/internal/history/domain"
)

// Full method names.
const (
	ServiceName                              = "canvas.v1.CanvasService"
	CanvasService_SaveCanvas_FullMethodName  = "/canvas.v1.CanvasService/SaveCanvas"
	CanvasService_GetLatest_FullMethodName   = "/canvas.v1.CanvasService/GetLatest"
	CanvasService_ListHistory_FullMethodName = "/canvas.v1.CanvasService/ListHistory"
)

type SaveCanvasRequest struct {
	ProjectID   string          `json:"projectId"`
	// RequesterID is used only when access tokens are disabled; otherwise the token subject wins.
	RequesterID string          `json:"requesterId,omitempty"`
	Snapshot    domain.Snapshot `json:"snapshot"`
}

func (r *SaveCanvasRequest) GetProjectID() string {
	if r == nil {
		return ""
	}
	return r.ProjectID
}

type SaveCanvasResponse struct {
	SequenceNumber int64 `json:"sequenceNumber"`
}

type GetLatestRequest struct {
	ProjectID string `json:"projectId"`
}

func (r *GetLatestRequest) GetProjectID() string {
	if r == nil {
		return ""
	}
	return r.ProjectID
}

// GetLatestResponse holds the newest entry; Entry is nil when the project has no history.
type GetLatestResponse struct {
	Entry *historydomain.Entry `json:"entry,omitempty"`
}

type ListHistoryRequest struct {
	ProjectID string `json:"projectId"`
	// Since excludes entries at or below this sequence number.
	Since     int64  `json:"since,omitempty"`
	// Limit caps the page size; 0 means the server maximum.
	Limit     int    `json:"limit,omitempty"`
}

func (r *ListHistoryRequest) GetProjectID() string {
	if r == nil {
		return ""
	}
	return r.ProjectID
}

type ListHistoryResponse struct {
	Entries []*historydomain.Entry `json:"entries"`
}

// CanvasServiceServer is the server API for CanvasService.
type CanvasServiceServer interface {
	SaveCanvas(context.Context, *SaveCanvasRequest) (*SaveCanvasResponse, error)
	GetLatest(context.Context, *GetLatestRequest) (*GetLatestResponse, error)
	ListHistory(context.Context, *ListHistoryRequest) (*ListHistoryResponse, error)
}

// UnimplementedCanvasServiceServer can be embedded to have forward compatible implementations.
type UnimplementedCanvasServiceServer struct{}

func (UnimplementedCanvasServiceServer) SaveCanvas(context.Context, *SaveCanvasRequest) (*SaveCanvasResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SaveCanvas not implemented")
}

func (UnimplementedCanvasServiceServer) GetLatest(context.Context, *GetLatestRequest) (*GetLatestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLatest not implemented")
}

func (UnimplementedCanvasServiceServer) ListHistory(context.Context, *ListHistoryRequest) (*ListHistoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListHistory not implemented")
}

// RegisterCanvasServiceServer registers srv on s.
func RegisterCanvasServiceServer(s grpc.ServiceRegistrar, srv CanvasServiceServer) {
	s.RegisterService(&CanvasService_ServiceDesc, srv)
}

func _CanvasService_SaveCanvas_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SaveCanvasRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanvasServiceServer).SaveCanvas(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CanvasService_SaveCanvas_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanvasServiceServer).SaveCanvas(ctx, req.(*SaveCanvasRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CanvasService_GetLatest_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetLatestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanvasServiceServer).GetLatest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CanvasService_GetLatest_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanvasServiceServer).GetLatest(ctx, req.(*GetLatestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _CanvasService_ListHistory_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanvasServiceServer).ListHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CanvasService_ListHistory_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanvasServiceServer).ListHistory(ctx, req.(*ListHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CanvasService_ServiceDesc is the grpc.ServiceDesc for CanvasService.
var CanvasService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CanvasServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SaveCanvas", Handler: _CanvasService_SaveCanvas_Handler},
		{MethodName: "GetLatest", Handler: _CanvasService_GetLatest_Handler},
		{MethodName: "ListHistory", Handler: _CanvasService_ListHistory_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "canvas/v1/canvas.go",
}

// CanvasServiceClient is the client API for CanvasService. Calls use the JSON codec.
type CanvasServiceClient interface {
	SaveCanvas(ctx context.Context, in *SaveCanvasRequest, opts ...grpc.CallOption) (*SaveCanvasResponse, error)
	GetLatest(ctx context.Context, in *GetLatestRequest, opts ...grpc.CallOption) (*GetLatestResponse, error)
	ListHistory(ctx context.Context, in *ListHistoryRequest, opts ...grpc.CallOption) (*ListHistoryResponse, error)
}

type canvasServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCanvasServiceClient returns a client over cc.
func NewCanvasServiceClient(cc grpc.ClientConnInterface) CanvasServiceClient {
	return &canvasServiceClient{cc}
}

func (c *canvasServiceClient) SaveCanvas(ctx context.Context, in *SaveCanvasRequest, opts ...grpc.CallOption) (*SaveCanvasResponse, error) {
	out := new(SaveCanvasResponse)
	if err := c.cc.Invoke(ctx, CanvasService_SaveCanvas_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *canvasServiceClient) GetLatest(ctx context.Context, in *GetLatestRequest, opts ...grpc.CallOption) (*GetLatestResponse, error) {
	out := new(GetLatestResponse)
	if err := c.cc.Invoke(ctx, CanvasService_GetLatest_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *canvasServiceClient) ListHistory(ctx context.Context, in *ListHistoryRequest, opts ...grpc.CallOption) (*ListHistoryResponse, error) {
	out := new(ListHistoryResponse)
	if err := c.cc.Invoke(ctx, CanvasService_ListHistory_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
