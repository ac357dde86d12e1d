package api

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/router"
	"github.com/TFMV/estateflow/workflow"
)

// Runner is the part of the router the service drives
type Runner interface {
	Start(ctx context.Context, name string, input interface{}) (router.RunHandle, error)
	Signal(ctx context.Context, h router.RunHandle, name string, payload interface{}) error
	Result(ctx context.Context, h router.RunHandle, out interface{}) error
	Step(ctx context.Context, h router.RunHandle) (string, error)
}

// Server implements OrchestratorServer on a router
type Server struct {
	runner Runner
	logger *logger.Logger
}

var _ OrchestratorServer = (*Server)(nil)

// NewServer creates the gRPC service
func NewServer(runner Runner, l *logger.Logger) *Server {
	if l == nil {
		l = logger.Nop()
	}
	return &Server{runner: runner, logger: l.With("component", "api")}
}

// Start begins a run. A "draftType" selects the publishing workflow of that
// draft kind; otherwise "workflow" names the workflow.
func (s *Server) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "workflow")
	if kind := stringField(req, "draftType"); kind != "" {
		n, err := workflow.PublishWorkflowName(domain.DraftType(kind))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		name = n
	}
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow or draftType is required")
	}

	var input interface{}
	if v, ok := req.GetFields()["input"]; ok {
		input = v.AsInterface()
	}

	h, err := s.runner.Start(ctx, name, input)
	if err != nil {
		s.logger.Warn("Start failed", "workflow", name, "error", err)
		return nil, toStatus(err)
	}
	return handleStruct(h)
}

// Signal delivers a signal to a run
func (s *Server) Signal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := handleFrom(req)
	if err != nil {
		return nil, err
	}
	signal := stringField(req, "signal")
	if signal == "" {
		return nil, status.Error(codes.InvalidArgument, "signal is required")
	}

	var payload interface{}
	if v, ok := req.GetFields()["payload"]; ok {
		payload = v.AsInterface()
	}
	if err := s.runner.Signal(ctx, h, signal, payload); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// Result waits for a run. Publishing workflows answer with the publish
// response document, failures included; other workflows return failures as
// gRPC status errors.
func (s *Server) Result(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := handleFrom(req)
	if err != nil {
		return nil, err
	}
	h.Workflow = stringField(req, "workflow")

	if isPublishWorkflow(h.Workflow) {
		var out workflow.PublishOutput
		runErr := s.runner.Result(ctx, h, &out)
		if isRunLookupError(runErr) {
			return nil, toStatus(runErr)
		}
		var data *workflow.PublishOutput
		if runErr == nil {
			data = &out
		}
		return resultStruct(h, workflow.NewPublishResponse(data, runErr))
	}

	var out interface{}
	if err := s.runner.Result(ctx, h, &out); err != nil {
		return nil, toStatus(err)
	}
	return resultStruct(h, out)
}

// Step reports a run's current step
func (s *Server) Step(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := handleFrom(req)
	if err != nil {
		return nil, err
	}
	step, err := s.runner.Step(ctx, h)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{"runId": h.RunID, "step": step})
}

func isPublishWorkflow(name string) bool {
	for _, kind := range domain.DraftTypes {
		if n, _ := workflow.PublishWorkflowName(kind); n == name {
			return true
		}
	}
	return false
}

func isRunLookupError(err error) bool {
	return errors.Is(err, workflow.ErrRunNotFound) ||
		errors.Is(err, workflow.ErrDurableDisabled) ||
		errors.Is(err, router.ErrUnknownMode)
}

func handleFrom(req *structpb.Struct) (router.RunHandle, error) {
	h := router.RunHandle{
		RunID: stringField(req, "runId"),
		Mode:  stringField(req, "mode"),
	}
	if h.RunID == "" {
		return h, status.Error(codes.InvalidArgument, "runId is required")
	}
	if h.Mode == "" {
		return h, status.Error(codes.InvalidArgument, "mode is required")
	}
	return h, nil
}

func handleStruct(h router.RunHandle) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"runId":     h.RunID,
		"workflow":  h.Workflow,
		"mode":      h.Mode,
		"completed": h.Completed,
	})
}

// resultStruct converts the output through JSON so typed results become
// plain documents
func resultStruct(h router.RunHandle, out interface{}) (*structpb.Struct, error) {
	doc, err := toDocument(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	v, err := structpb.NewValue(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode result: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"runId":  structpb.NewStringValue(h.RunID),
		"output": v,
	}}, nil
}

func toDocument(out interface{}) (interface{}, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func stringField(req *structpb.Struct, key string) string {
	if v, ok := req.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

// toStatus maps run failures onto gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, workflow.ErrRunNotFound), errors.Is(err, workflow.ErrUnknownWorkflow):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, workflow.ErrRunCompleted):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, workflow.ErrDurableDisabled):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, router.ErrUnknownMode):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	e, ok := workflow.AsError(err)
	if !ok {
		return status.Error(codes.Unknown, err.Error())
	}
	switch e.Kind {
	case workflow.KindValidation:
		st := status.New(codes.InvalidArgument, e.Error())
		br := &errdetails.BadRequest{}
		for _, f := range e.Fields {
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       e.Activity,
				Description: f,
			})
		}
		if withDetails, derr := st.WithDetails(br); derr == nil {
			st = withDetails
		}
		return st.Err()
	case workflow.KindNotFound:
		return status.Error(codes.NotFound, e.Error())
	case workflow.KindCompensatable:
		return status.Error(codes.FailedPrecondition, e.Error())
	case workflow.KindTransient:
		return status.Error(codes.Unavailable, e.Error())
	}
	return status.Error(codes.Internal, e.Error())
}
