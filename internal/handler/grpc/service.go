package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ipmeta.v1.MetadataService"

const (
	lookupMethod        = "/" + ServiceName + "/Lookup"
	listProvidersMethod = "/" + ServiceName + "/ListProviders"
)

// MetadataServiceServer is the server API for the metadata service.
// Messages are google.protobuf.Struct documents.
type MetadataServiceServer interface {
	Lookup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListProviders(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the metadata service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetadataServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lookup", Handler: unary(lookupMethod, MetadataServiceServer.Lookup)},
		{MethodName: "ListProviders", Handler: unary(listProvidersMethod, MetadataServiceServer.ListProviders)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ipmeta/v1/metadata.proto",
}

// Register adds the metadata service to s.
func Register(s grpc.ServiceRegistrar, srv MetadataServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(MetadataServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetadataServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MetadataServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls the metadata service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Lookup(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, lookupMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListProviders(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listProvidersMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
