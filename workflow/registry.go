package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"

	"github.com/TFMV/estateflow/chaos"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/metrics"
)

// Registrar is the registration surface shared by a Temporal worker and the
// SDK test environment
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// ErrUnknownWorkflow is returned when starting a workflow nobody defined
var ErrUnknownWorkflow = errors.New("unknown workflow")

type activityDef struct {
	name    string
	durable interface{}
	direct  func(ctx context.Context, in *commonpb.Payload) (*commonpb.Payload, error)
}

type workflowDef struct {
	name      string
	longLived bool
	durable   interface{}
	direct    func(rt Runtime, in *commonpb.Payload) (*commonpb.Payload, error)
}

// Registry holds every activity and workflow definition once and exposes them
// to both execution back ends
type Registry struct {
	dc         converter.DataConverter
	chaos      *chaos.Engine
	metrics    *metrics.Metrics
	activities map[string]*activityDef
	workflows  map[string]*workflowDef
}

// NewRegistry creates an empty registry. engine and m may be nil.
func NewRegistry(engine *chaos.Engine, m *metrics.Metrics) *Registry {
	return &Registry{
		dc:         converter.GetDefaultDataConverter(),
		chaos:      engine,
		metrics:    m,
		activities: make(map[string]*activityDef),
		workflows:  make(map[string]*workflowDef),
	}
}

// DataConverter is the converter used for activity and workflow I/O in both modes
func (r *Registry) DataConverter() converter.DataConverter { return r.dc }

// RegisterActivity adds a typed activity under name
func RegisterActivity[I, O any](r *Registry, name string, fn func(context.Context, I) (O, error)) {
	durable := func(ctx context.Context, in I) (O, error) {
		attempt := int(activity.GetInfo(ctx).Attempt)
		out, err := runAttempt(r, ctx, name, func(ctx context.Context) (O, error) { return fn(ctx, in) })
		if err != nil {
			return out, toApplicationError(name, err, attempt)
		}
		return out, nil
	}

	direct := func(ctx context.Context, payload *commonpb.Payload) (*commonpb.Payload, error) {
		var in I
		if err := r.dc.FromPayload(payload, &in); err != nil {
			return nil, &Error{Kind: KindValidation, Activity: name, Message: "decode input: " + err.Error(), Cause: err}
		}
		out, err := runAttempt(r, ctx, name, func(ctx context.Context) (O, error) { return fn(ctx, in) })
		if err != nil {
			return nil, err
		}
		return r.dc.ToPayload(out)
	}

	r.activities[name] = &activityDef{name: name, durable: durable, direct: direct}
}

// DefineWorkflow adds a typed workflow under name. Long-lived workflows wait on
// signals and run asynchronously in direct mode.
func DefineWorkflow[I, O any](r *Registry, name string, longLived bool, fn func(Runtime, I) (O, error)) {
	durable := func(ctx workflow.Context, in I) (O, error) {
		out, err := fn(newTemporalRuntime(ctx), in)
		if !workflow.IsReplaying(ctx) {
			r.metrics.ObserveRun(name, ModeDurable, err)
		}
		if err != nil {
			var zero O
			return zero, toApplicationError("", err, 0)
		}
		return out, nil
	}

	direct := func(rt Runtime, payload *commonpb.Payload) (*commonpb.Payload, error) {
		var in I
		if err := r.dc.FromPayload(payload, &in); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "decode workflow input: " + err.Error(), Cause: err}
		}
		out, err := fn(rt, in)
		if err != nil {
			return nil, err
		}
		return r.dc.ToPayload(out)
	}

	r.workflows[name] = &workflowDef{name: name, longLived: longLived, durable: durable, direct: direct}
}

// Register adds every definition to a Temporal worker or test environment
func (r *Registry) Register(reg Registrar) {
	for _, name := range r.WorkflowNames() {
		reg.RegisterWorkflowWithOptions(r.workflows[name].durable, workflow.RegisterOptions{Name: name})
	}
	for _, name := range r.ActivityNames() {
		reg.RegisterActivityWithOptions(r.activities[name].durable, activity.RegisterOptions{Name: name})
	}
}

// WorkflowNames lists registered workflows in sorted order
func (r *Registry) WorkflowNames() []string {
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActivityNames lists registered activities in sorted order
func (r *Registry) ActivityNames() []string {
	names := make([]string, 0, len(r.activities))
	for name := range r.activities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasWorkflow reports whether name is registered
func (r *Registry) HasWorkflow(name string) bool {
	_, ok := r.workflows[name]
	return ok
}

// IsLongLived reports whether the workflow waits on external signals
func (r *Registry) IsLongLived(name string) bool {
	def, ok := r.workflows[name]
	return ok && def.longLived
}

func (r *Registry) workflow(name string) (*workflowDef, error) {
	def, ok := r.workflows[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownWorkflow, name)
	}
	return def, nil
}

func (r *Registry) activity(name string) (*activityDef, error) {
	def, ok := r.activities[name]
	if !ok {
		return nil, fmt.Errorf("unknown activity %q", name)
	}
	return def, nil
}

func runAttempt[O any](r *Registry, ctx context.Context, name string, fn func(context.Context) (O, error)) (O, error) {
	start := time.Now()
	if err := r.chaos.Before(ctx, name); err != nil {
		r.metrics.ObserveAttempt(name, time.Since(start).Seconds(), err)
		var zero O
		return zero, err
	}
	out, err := fn(ctx)
	r.metrics.ObserveAttempt(name, time.Since(start).Seconds(), err)
	return out, err
}

type loggerKey struct{}

// activityLogger returns the logger of the activity running in ctx
func activityLogger(ctx context.Context) log.Logger {
	if activity.IsActivity(ctx) {
		return activity.GetLogger(ctx)
	}
	if l, ok := ctx.Value(loggerKey{}).(log.Logger); ok {
		return l
	}
	return logger.Nop()
}

type attemptKey struct{}

// activityAttempt returns the 1-indexed attempt of the activity running in ctx
func activityAttempt(ctx context.Context) int {
	if activity.IsActivity(ctx) {
		return int(activity.GetInfo(ctx).Attempt)
	}
	if n, ok := ctx.Value(attemptKey{}).(int); ok {
		return n
	}
	return 1
}

// runIDOf returns the workflow run an activity belongs to
func runIDOf(ctx context.Context) string {
	if activity.IsActivity(ctx) {
		return activity.GetInfo(ctx).WorkflowExecution.ID
	}
	if id, ok := ctx.Value(runIDKey{}).(string); ok {
		return id
	}
	return ""
}

type runIDKey struct{}
