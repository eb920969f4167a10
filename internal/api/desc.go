package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "imstore.v1.Resolver"

// ResolverServer is the server side of imstore.v1.Resolver. Every message
// is a google.protobuf.Struct.
type ResolverServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Type(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetPresence(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Enqueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*structpb.Struct, grpc.ServerStream) error
}

type unaryFunc func(ResolverServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn unaryFunc) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(ResolverServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(ResolverServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ResolverServer).Watch(in, stream)
}

// ServiceDesc describes imstore.v1.Resolver for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Query", ResolverServer.Query),
		unary("Insert", ResolverServer.Insert),
		unary("Update", ResolverServer.Update),
		unary("Delete", ResolverServer.Delete),
		unary("Type", ResolverServer.Type),
		unary("Status", ResolverServer.Status),
		unary("Transition", ResolverServer.Transition),
		unary("SetPresence", ResolverServer.SetPresence),
		unary("Enqueue", ResolverServer.Enqueue),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "imstore/v1/resolver.proto",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv ResolverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Method returns the full method path for name, as used by clients.
func Method(name string) string {
	return "/" + ServiceName + "/" + name
}
