// Package diagnostics exposes the alternatives table over gRPC.
//
// The service is declared by hand rather than generated: both methods take
// google.protobuf.Empty and return google.protobuf.Struct, so the well-known
// types cover the whole wire format.
package diagnostics

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tagmesh.diagnostics.v1.Diagnostics"

// Full method names.
const (
	QueryAlternativesMethod = "/" + ServiceName + "/QueryAlternatives"
	GetStatsMethod          = "/" + ServiceName + "/GetStats"
)

// DiagnosticsServer is the server API of the diagnostics service.
type DiagnosticsServer interface {
	// QueryAlternatives returns the routing table as
	// sourceTag -> [{tag, plugin, priority}, ...].
	QueryAlternatives(context.Context, *emptypb.Empty) (*structpb.Struct, error)

	// GetStats returns registry and bus counters.
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes the diagnostics service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiagnosticsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QueryAlternatives", Handler: queryAlternativesHandler},
		{MethodName: "GetStats", Handler: getStatsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tagmesh/diagnostics/v1/diagnostics.proto",
}

// RegisterDiagnosticsServer registers srv on s.
func RegisterDiagnosticsServer(s grpc.ServiceRegistrar, srv DiagnosticsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func queryAlternativesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).QueryAlternatives(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: QueryAlternativesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).QueryAlternatives(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiagnosticsServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiagnosticsServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
