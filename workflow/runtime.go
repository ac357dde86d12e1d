package workflow

import (
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"
)

// Execution modes
const (
	ModeDurable = "durable"
	ModeDirect  = "direct"
)

// QueryCurrentStep reports the step a run is in
const QueryCurrentStep = "current_step"

// Runtime is everything a workflow definition may do. Definitions are written
// once against it and run unchanged by the durable (Temporal) and direct back ends.
type Runtime interface {
	// ExecuteActivity invokes a registered activity under policy and decodes its result into out
	ExecuteActivity(name string, policy Policy, in, out interface{}) error

	// AwaitSignal blocks until a signal arrives or timeout elapses. A signal that is
	// pending when the timer fires still wins. A non-positive timeout only drains.
	AwaitSignal(name string, timeout time.Duration, out interface{}) (bool, error)

	Now() time.Time
	Logger() log.Logger
	RunID() string
	Mode() string

	// SetStep records the state the run is in for the current_step query
	SetStep(step string)
}

// call runs an activity under its attached policy
func call(rt Runtime, name string, in, out interface{}) error {
	return rt.ExecuteActivity(name, PolicyFor(name), in, out)
}

type temporalRuntime struct {
	ctx  workflow.Context
	step string
}

func newTemporalRuntime(ctx workflow.Context) *temporalRuntime {
	rt := &temporalRuntime{ctx: ctx, step: "STARTED"}
	err := workflow.SetQueryHandler(ctx, QueryCurrentStep, func() (string, error) {
		return rt.step, nil
	})
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to register query handler", "error", err)
	}
	return rt
}

func (rt *temporalRuntime) ExecuteActivity(name string, policy Policy, in, out interface{}) error {
	actx := workflow.WithActivityOptions(rt.ctx, policy.ActivityOptions())
	err := workflow.ExecuteActivity(actx, name, in).Get(rt.ctx, out)
	if err != nil {
		return fromTemporal(name, err, policy.MaximumAttempts)
	}
	return nil
}

func (rt *temporalRuntime) AwaitSignal(name string, timeout time.Duration, out interface{}) (bool, error) {
	ch := workflow.GetSignalChannel(rt.ctx, name)
	if timeout <= 0 {
		return ch.ReceiveAsync(out), nil
	}

	timerCtx, cancelTimer := workflow.WithCancel(rt.ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, timeout)

	received := false
	sel := workflow.NewSelector(rt.ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		c.Receive(rt.ctx, out)
		received = true
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(rt.ctx)

	if received {
		return true, nil
	}
	if err := rt.ctx.Err(); err != nil {
		return false, err
	}
	// The timer fired; a signal delivered in the same task still wins
	return ch.ReceiveAsync(out), nil
}

func (rt *temporalRuntime) Now() time.Time { return workflow.Now(rt.ctx) }

func (rt *temporalRuntime) Logger() log.Logger { return workflow.GetLogger(rt.ctx) }

func (rt *temporalRuntime) RunID() string { return workflow.GetInfo(rt.ctx).WorkflowExecution.ID }

func (rt *temporalRuntime) Mode() string { return ModeDurable }

func (rt *temporalRuntime) SetStep(step string) { rt.step = step }
