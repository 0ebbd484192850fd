package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Service descriptor.
 *
 * Messages are google.protobuf.Struct documents, so the service is registered
 * with a hand-written grpc.ServiceDesc instead of generated stubs. Field names
 * in requests and responses follow the JSON encoding of the domain types.
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "varextract.v1.ExtractionService"

// Full method names.
const (
	MethodExtract    = "/" + ServiceName + "/Extract"
	MethodExtractAll = "/" + ServiceName + "/ExtractAll"
	MethodParsePaths = "/" + ServiceName + "/ParsePaths"
)

// ExtractionServer is the server API for the extraction service.
type ExtractionServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ExtractAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ParsePaths(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the extraction service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler(MethodExtract, ExtractionServer.Extract)},
		{MethodName: "ExtractAll", Handler: unaryHandler(MethodExtractAll, ExtractionServer.ExtractAll)},
		{MethodName: "ParsePaths", Handler: unaryHandler(MethodParsePaths, ExtractionServer.ParsePaths)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "varextract/v1/extraction.proto",
}

// RegisterExtractionServer registers srv on s.
func RegisterExtractionServer(s grpc.ServiceRegistrar, srv ExtractionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ExtractionClient calls the extraction service.
type ExtractionClient struct {
	cc grpc.ClientConnInterface
}

// NewExtractionClient returns a client over cc.
func NewExtractionClient(cc grpc.ClientConnInterface) *ExtractionClient {
	return &ExtractionClient{cc: cc}
}

func (c *ExtractionClient) invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Extract calls ExtractionService/Extract.
func (c *ExtractionClient) Extract(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodExtract, req, opts...)
}

// ExtractAll calls ExtractionService/ExtractAll.
func (c *ExtractionClient) ExtractAll(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodExtractAll, req, opts...)
}

// ParsePaths calls ExtractionService/ParsePaths.
func (c *ExtractionClient) ParsePaths(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodParsePaths, req, opts...)
}
