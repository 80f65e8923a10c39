package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/capiscio/hap-core/pkg/verify"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hap.v1.VerificationService"

// VerifyClaimRequest asks for a claim to be verified against its issuer.
type VerifyClaimRequest struct {
	ID     string `json:"id"`
	Issuer string `json:"issuer"`
}

// VerifyCompactRequest asks for a compact record to be verified.
type VerifyCompactRequest struct {
	Compact string `json:"compact"`
}

// VerifyResponse carries the pipeline outcome. Rejections are responses,
// not RPC errors.
type VerifyResponse struct {
	*verify.Outcome
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// VerificationServiceServer is the server API for VerificationService.
type VerificationServiceServer interface {
	VerifyClaim(context.Context, *VerifyClaimRequest) (*VerifyResponse, error)
	VerifyCompact(context.Context, *VerifyCompactRequest) (*VerifyResponse, error)
}

// VerificationService implements VerificationServiceServer over a pipeline.
type VerificationService struct {
	pipeline *verify.Pipeline
}

// NewVerificationService creates a new VerificationService instance.
func NewVerificationService(pipeline *verify.Pipeline) *VerificationService {
	return &VerificationService{pipeline: pipeline}
}

// VerifyClaim runs the full lookup pipeline.
func (s *VerificationService) VerifyClaim(ctx context.Context, req *VerifyClaimRequest) (*VerifyResponse, error) {
	if req.Issuer == "" {
		return nil, status.Error(codes.InvalidArgument, "issuer is required")
	}
	return toResponse(s.pipeline.Verify(ctx, req.ID, req.Issuer)), nil
}

// VerifyCompact verifies a compact record against its issuer's keys.
func (s *VerificationService) VerifyCompact(ctx context.Context, req *VerifyCompactRequest) (*VerifyResponse, error) {
	if req.Compact == "" {
		return nil, status.Error(codes.InvalidArgument, "compact is required")
	}
	return toResponse(s.pipeline.VerifyCompact(ctx, req.Compact)), nil
}

func toResponse(o *verify.Outcome) *VerifyResponse {
	resp := &VerifyResponse{Outcome: o}
	if o.Err != nil {
		resp.ErrorMessage = o.Err.Error()
	}
	return resp
}

// RegisterVerificationServiceServer registers srv with s.
func RegisterVerificationServiceServer(s grpc.ServiceRegistrar, srv VerificationServiceServer) {
	s.RegisterService(&VerificationServiceDesc, srv)
}

// VerificationServiceDesc is the grpc.ServiceDesc for VerificationService.
var VerificationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerificationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "VerifyClaim", Handler: verifyClaimHandler},
		{MethodName: "VerifyCompact", Handler: verifyCompactHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func verifyClaimHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyClaimRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServiceServer).VerifyClaim(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/VerifyClaim"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServiceServer).VerifyClaim(ctx, req.(*VerifyClaimRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func verifyCompactHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyCompactRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServiceServer).VerifyCompact(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/VerifyCompact"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServiceServer).VerifyCompact(ctx, req.(*VerifyCompactRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// VerificationClient calls VerificationService.
type VerificationClient struct {
	cc grpc.ClientConnInterface
}

// NewVerificationClient creates a client over cc.
func NewVerificationClient(cc grpc.ClientConnInterface) *VerificationClient {
	return &VerificationClient{cc: cc}
}

// VerifyClaim calls the VerifyClaim method.
func (c *VerificationClient) VerifyClaim(ctx context.Context, in *VerifyClaimRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/VerifyClaim", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyCompact calls the VerifyCompact method.
func (c *VerificationClient) VerifyCompact(ctx context.Context, in *VerifyCompactRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/VerifyCompact", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
