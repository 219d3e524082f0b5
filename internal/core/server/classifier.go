package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// The Classifier service is declared by hand. Every message is a
// google.protobuf.Struct so clients need no generated stubs:
//
//	Process      {payload: {...}, single_label: bool} -> {payload_id, labels, applied_rule_ids, processed_at}
//	ExtractKeys  {...sample...}                       -> {keys: [...]}
//	Statistics   {label, from, to}                    -> {total_payloads, by_label: [...]}

const (
	ClassifierServiceName = "labelkeeper.v1.Classifier"

	ClassifierProcessMethod     = "/labelkeeper.v1.Classifier/Process"
	ClassifierExtractKeysMethod = "/labelkeeper.v1.Classifier/ExtractKeys"
	ClassifierStatisticsMethod  = "/labelkeeper.v1.Classifier/Statistics"
)

// ClassifierServer is the server API for the Classifier service.
type ClassifierServer interface {
	Process(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtractKeys(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Statistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterClassifierServer registers srv on s.
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ClassifierServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: unaryStructHandler(ClassifierProcessMethod, ClassifierServer.Process)},
		{MethodName: "ExtractKeys", Handler: unaryStructHandler(ClassifierExtractKeysMethod, ClassifierServer.ExtractKeys)},
		{MethodName: "Statistics", Handler: unaryStructHandler(ClassifierStatisticsMethod, ClassifierServer.Statistics)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labelkeeper/v1/classifier.proto",
}

type structMethod func(ClassifierServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryStructHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ClassifierServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ClassifierServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ClassifierClient is the client API for the Classifier service.
type ClassifierClient struct {
	cc grpc.ClientConnInterface
}

// NewClassifierClient wraps a client connection.
func NewClassifierClient(cc grpc.ClientConnInterface) *ClassifierClient {
	return &ClassifierClient{cc: cc}
}

// Process classifies one payload.
func (c *ClassifierClient) Process(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ClassifierProcessMethod, in, opts...)
}

// ExtractKeys lists the key paths of a sample object.
func (c *ClassifierClient) ExtractKeys(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ClassifierExtractKeysMethod, in, opts...)
}

// Statistics returns the caller's label statistics.
func (c *ClassifierClient) Statistics(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ClassifierStatisticsMethod, in, opts...)
}

func (c *ClassifierClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
