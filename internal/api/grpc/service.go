// Package grpc serves partition definitions to workers over gRPC.
//
// The service uses the protobuf well-known wrapper types as its messages, so
// it is registered through a hand-written grpc.ServiceDesc rather than
// generated stubs:
//
//	service SplitService {
//	  rpc Assignments(google.protobuf.Int32Value) returns (stream google.protobuf.BytesValue);
//	  rpc Describe(google.protobuf.BytesValue) returns (google.protobuf.StringValue);
//	}
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/shardsplit/shardsplit/pkg/split"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "shardsplit.v1.SplitService"

	// JobIDHeader carries the job id of an Assignments call.
	JobIDHeader = "x-job-id"

	// RequestIDHeader optionally carries a caller-chosen request id.
	RequestIDHeader = "x-request-id"

	assignmentsMethod = "/" + ServiceName + "/Assignments"
	describeMethod    = "/" + ServiceName + "/Describe"

	// MaxMessageSize fits one encoded definition carrying both payloads at
	// split.MaxPayloadBytes plus the index name and fixed fields.
	MaxMessageSize = 2*split.MaxPayloadBytes + 1<<20
)

// ServerOptions returns the options a grpc.Server needs to carry
// definitions of any encodable size.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.MaxSendMsgSize(MaxMessageSize),
	}
}

var callOptions = []grpc.CallOption{
	grpc.MaxCallRecvMsgSize(MaxMessageSize),
	grpc.MaxCallSendMsgSize(MaxMessageSize),
}

// SplitServiceServer is the server API for SplitService.
type SplitServiceServer interface {
	// Assignments streams the encoded definitions assigned to a worker.
	Assignments(*wrapperspb.Int32Value, AssignmentsStream) error
	// Describe decodes one definition and returns its display form.
	Describe(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

// AssignmentsStream is the server side of an Assignments call.
type AssignmentsStream interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type assignmentsStream struct {
	grpc.ServerStream
}

func (s *assignmentsStream) Send(m *wrapperspb.BytesValue) error {
	return s.ServerStream.SendMsg(m)
}

// SplitServiceDesc describes SplitService for grpc.Server.RegisterService.
var SplitServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SplitServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Assignments", Handler: assignmentsHandler, ServerStreams: true},
	},
	Metadata: "shardsplit/v1/split.proto",
}

// RegisterSplitServiceServer registers srv on s.
func RegisterSplitServiceServer(s grpc.ServiceRegistrar, srv SplitServiceServer) {
	s.RegisterService(&SplitServiceDesc, srv)
}

func describeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SplitServiceServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SplitServiceServer).Describe(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func assignmentsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.Int32Value)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SplitServiceServer).Assignments(in, &assignmentsStream{stream})
}
