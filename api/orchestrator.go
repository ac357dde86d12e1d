package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "estateflow.v1.Orchestrator"

const (
	startMethod  = "/" + ServiceName + "/Start"
	signalMethod = "/" + ServiceName + "/Signal"
	resultMethod = "/" + ServiceName + "/Result"
	stepMethod   = "/" + ServiceName + "/Step"
)

// OrchestratorServer is the server API for the Orchestrator service. Requests
// and responses are structpb.Struct documents.
type OrchestratorServer interface {
	// Start begins a workflow run: {"workflow", "input"} or {"draftType", "input"}
	Start(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Signal delivers a signal: {"runId", "mode", "signal", "payload"}
	Signal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Result waits for a run: {"runId", "mode", "workflow"}
	Result(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Step reports a run's current step: {"runId", "mode"}
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterOrchestratorServer registers srv on s
func RegisterOrchestratorServer(s grpc.ServiceRegistrar, srv OrchestratorServer) {
	s.RegisterService(&OrchestratorServiceDesc, srv)
}

func unaryHandler(method string, call func(OrchestratorServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrchestratorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OrchestratorServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrchestratorServiceDesc is the grpc.ServiceDesc for the Orchestrator service
var OrchestratorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Start", Handler: unaryHandler(startMethod, OrchestratorServer.Start)},
		{MethodName: "Signal", Handler: unaryHandler(signalMethod, OrchestratorServer.Signal)},
		{MethodName: "Result", Handler: unaryHandler(resultMethod, OrchestratorServer.Result)},
		{MethodName: "Step", Handler: unaryHandler(stepMethod, OrchestratorServer.Step)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "estateflow/v1/orchestrator.proto",
}

// OrchestratorClient is the client API for the Orchestrator service
type OrchestratorClient struct {
	cc grpc.ClientConnInterface
}

// NewOrchestratorClient creates a client on cc
func NewOrchestratorClient(cc grpc.ClientConnInterface) *OrchestratorClient {
	return &OrchestratorClient{cc: cc}
}

func (c *OrchestratorClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Start calls Orchestrator/Start
func (c *OrchestratorClient) Start(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, startMethod, in, opts...)
}

// Signal calls Orchestrator/Signal
func (c *OrchestratorClient) Signal(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, signalMethod, in, opts...)
}

// Result calls Orchestrator/Result
func (c *OrchestratorClient) Result(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, resultMethod, in, opts...)
}

// Step calls Orchestrator/Step
func (c *OrchestratorClient) Step(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, stepMethod, in, opts...)
}
