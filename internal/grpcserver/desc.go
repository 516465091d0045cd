package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "builderpulse.notification.v1.DigestAdmin"

const runDigestOnceMethod = "/" + ServiceName + "/RunDigestOnce"

// DigestAdminServer is the server API for DigestAdmin. The service uses only
// well-known types, so its descriptor is declared by hand.
type DigestAdminServer interface {
	RunDigestOnce(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// DigestAdminServiceDesc describes the DigestAdmin service.
var DigestAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DigestAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunDigestOnce", Handler: runDigestOnceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "builderpulse/notification/v1/digest_admin.proto",
}

// RegisterDigestAdminServer registers srv on s.
func RegisterDigestAdminServer(s grpc.ServiceRegistrar, srv DigestAdminServer) {
	s.RegisterService(&DigestAdminServiceDesc, srv)
}

func runDigestOnceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DigestAdminServer).RunDigestOnce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runDigestOnceMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DigestAdminServer).RunDigestOnce(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// DigestAdminClient calls DigestAdmin.
type DigestAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewDigestAdminClient(cc grpc.ClientConnInterface) *DigestAdminClient {
	return &DigestAdminClient{cc: cc}
}

func (c *DigestAdminClient) RunDigestOnce(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runDigestOnceMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
