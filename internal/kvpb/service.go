package kvpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

func init() {
	// Overrides the default "proto" codec (normally backed by
	// google.golang.org/protobuf's full message reflection) with the
	// hand-rolled one in codec.go, since SecureLookupRequest/Response are plain
	// structs, not generated proto.Message implementations.
	encoding.RegisterCodec(codec{})
}

// InternalLookupServiceServer is the server-side contract for the
// shard-to-shard OHTTP-wrapped lookup RPC (spec §4.6/§6).
type InternalLookupServiceServer interface {
	SecureLookup(ctx context.Context, req *SecureLookupRequest) (*SecureLookupResponse, error)
}

// RegisterInternalLookupServiceServer registers srv on s using the
// hand-written ServiceDesc below.
func RegisterInternalLookupServiceServer(s grpc.ServiceRegistrar, srv InternalLookupServiceServer) {
	s.RegisterService(&internalLookupServiceDesc, srv)
}

func secureLookupHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SecureLookupRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InternalLookupServiceServer).SecureLookup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/kvshard.internal.InternalLookupService/SecureLookup",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InternalLookupServiceServer).SecureLookup(ctx, req.(*SecureLookupRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// internalLookupServiceDesc plays the role a protoc-gen-go-grpc-generated
// _ServiceDesc var normally plays; it is hand-written because no .proto
// file or protoc run is available to generate one.
var internalLookupServiceDesc = grpc.ServiceDesc{
	ServiceName: "kvshard.internal.InternalLookupService",
	HandlerType: (*InternalLookupServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SecureLookup",
			Handler:    secureLookupHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/kvpb/service.go",
}

// InternalLookupServiceClient is the client-side contract for the RPC.
type InternalLookupServiceClient interface {
	SecureLookup(ctx context.Context, in *SecureLookupRequest, opts ...grpc.CallOption) (*SecureLookupResponse, error)
}

type internalLookupServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInternalLookupServiceClient builds a client stub bound to cc.
func NewInternalLookupServiceClient(cc grpc.ClientConnInterface) InternalLookupServiceClient {
	return &internalLookupServiceClient{cc: cc}
}

func (c *internalLookupServiceClient) SecureLookup(ctx context.Context, in *SecureLookupRequest, opts ...grpc.CallOption) (*SecureLookupResponse, error) {
	out := new(SecureLookupResponse)
	err := c.cc.Invoke(ctx, "/kvshard.internal.InternalLookupService/SecureLookup", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
